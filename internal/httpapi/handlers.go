package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ragqa/internal/agent"
	"ragqa/internal/embedding"
	"ragqa/internal/errs"
	"ragqa/internal/llm"
	"ragqa/internal/observability"
	"ragqa/internal/platform"
	"ragqa/internal/rag/ingest"
	"ragqa/internal/rag/retrieve"
	"ragqa/internal/tools"
	"ragqa/internal/tools/web"
	"ragqa/internal/transcript"
	"ragqa/internal/vectorstore"
)

// Embedder is the subset of *embedding.Client the HTTP edge needs to build
// the Hybrid Retriever and the Indexer for one request.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	CheckReachability(ctx context.Context) error
}

// generateRequest is the /v1/generate request body (spec field names kept
// verbatim since they are the wire contract).
type generateRequest struct {
	CurrentMessage   string   `json:"current_message"`
	ChatHistoryIRVID string   `json:"chat_history_irv_id"`
	SystemPrompt     string   `json:"system_prompt"`
	Temperature      float64  `json:"temperature"`
	MaxTokens        int      `json:"max_tokens"`
	N                int      `json:"n"`
	LLMAPIKey        string   `json:"llm_api_key"`
	LLMURL           string   `json:"llm_url"`
	LLMModelName     string   `json:"llm_model_name"`
	EmbedAPIKey      string   `json:"embed_api_key"`
	EmbedURL         string   `json:"embed_url"`
	EmbedModelName   string   `json:"embed_model_name"`
	SearchAPIKey     string   `json:"search_api_key"`
	SearchURL        string   `json:"search_url"`
	VDBURL           string   `json:"vdb_url"`
	FileIRVIDs       []string `json:"file_irv_ids"`
	Internet         bool     `json:"internet"`
	KnowledgeBase    bool     `json:"knowledge_base"`
	IRVID            string   `json:"irv_id"`
}

// errorBody is the standardized error envelope.
type errorBody struct {
	Error  string     `json:"error"`
	Detail string     `json:"detail"`
	Code   string     `json:"code"`
	Errors []fieldErr `json:"errors,omitempty"`
}

type fieldErr struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// respondJSON always writes HTTP 200; success/failure is signaled by the
// presence of the body's "error" field, per the HTTP surface contract.
func respondJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, errorBodyFor(err))
}

// errorBodyFor maps any error into the standardized envelope. *errs.Error
// values carry their own kind; anything else becomes internal_error with
// the raw message as detail, per the error-handling policy's catch-all.
func errorBodyFor(err error) errorBody {
	e, _ := err.(*errs.Error)
	if e == nil {
		return errorBody{Error: "internal_error", Detail: err.Error(), Code: string(errs.KindInternalError)}
	}
	return errorBody{Error: string(e.Kind), Detail: e.Message, Code: string(e.Kind)}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.KindValidation, false, err)
	}
	return nil
}

// platformClientFor builds a Client authenticated with the inbound
// request's Referer and JSESSIONID cookie, per the platform adapter's
// session model.
func platformClientFor(r *http.Request) (*platform.Client, error) {
	referer, jsessionID := platformCredentials(r)
	return platform.New(referer, jsessionID, 10*time.Second)
}

func platformCredentials(r *http.Request) (referer, jsessionID string) {
	referer = r.Header.Get("Referer")
	if c, err := r.Cookie("JSESSIONID"); err == nil {
		jsessionID = c.Value
	}
	return referer, jsessionID
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"status": "ok"})
}

// handleGenerate dispatches between the single-shot structured-output path
// and the agent loop, per the request's internet/knowledge_base flags.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)

	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.CurrentMessage) == "" {
		respondError(w, errs.New(errs.KindMissingCurrentMsg, "current_message is required"))
		return
	}

	provider, err := s.buildLLMProvider(ctx, req.LLMAPIKey, req.LLMURL, req.LLMModelName)
	if err != nil {
		respondError(w, err)
		return
	}

	var chatHistory []transcript.Message
	var transcriptStore *transcript.Store
	objectExists := false
	if platformClient, perr := platformClientFor(r); perr == nil {
		transcriptStore = transcript.New(platformClient).WithMirror(s.deps.TranscriptMirror)
		chatHistory, objectExists = transcriptStore.Load(ctx, req.ChatHistoryIRVID)
	} else if req.ChatHistoryIRVID != "" {
		logger.Warn().Err(perr).Msg("generate_transcript_load_skipped")
	}

	messages := make([]llm.Message, 0, len(chatHistory)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range chatHistory {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.CurrentMessage})

	var answer, chatTitle, chatSummary string
	var answerObj map[string]any

	if !req.Internet && !req.KnowledgeBase {
		answer, answerObj, err = s.singleShot(ctx, provider, messages, req)
	} else {
		answer, chatTitle, chatSummary, err = s.agentLoop(ctx, provider, messages, req)
	}
	if err != nil {
		respondError(w, err)
		return
	}

	resp := map[string]any{}
	if answerObj != nil {
		for k, v := range answerObj {
			resp[k] = v
		}
	} else {
		resp["answer"] = answer
	}

	chatHistoryDescriptor := map[string]any{"irv_id": req.ChatHistoryIRVID}
	if transcriptStore != nil {
		fullMessages := append(append([]transcript.Message(nil), chatHistory...),
			transcript.Message{Role: "user", Content: req.CurrentMessage},
			transcript.Message{Role: "assistant", Content: answer},
		)
		saveResult, saveErr := transcriptStore.Save(ctx, transcript.SaveInput{
			ChatHistoryIRVID: req.ChatHistoryIRVID,
			ObjectExists:     objectExists,
			IRVID:            req.IRVID,
			ChatTitle:        chatTitle,
			ChatSummary:      chatSummary,
			FullMessages:     fullMessages,
		})
		if saveErr != nil {
			// Transcript persistence failures are logged and swallowed; they
			// never fail the enclosing generate call.
			logger.Warn().Err(saveErr).Msg("generate_transcript_save_failed")
		} else {
			chatHistoryDescriptor["irv_id"] = saveResult.NewIRVID
		}
	}
	resp["chat_history"] = chatHistoryDescriptor

	respondJSON(w, resp)
}

// singleShot issues one direct LLM call, retrying up to llm.max_retry_count
// times when the structured response is missing its answer field.
func (s *Server) singleShot(ctx context.Context, provider llm.Provider, messages []llm.Message, req generateRequest) (string, map[string]any, error) {
	maxRetries := s.deps.Config.LLM.MaxRetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := provider.Chat(ctx, llm.Request{
			Messages:    messages,
			Model:       req.LLMModelName,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			if !errs.IsRetryable(err) {
				return "", nil, err
			}
			lastErr = err
			continue
		}
		obj, raw, ok := llm.ParseStructured(resp.Content)
		if ok {
			if llm.HasAnswerField(obj) {
				return raw, obj, nil
			}
			lastErr = llm.ClassifyMissingAnswerField()
			continue
		}
		// Unstructured content is treated as the answer directly.
		return resp.Content, nil, nil
	}
	if lastErr == nil {
		lastErr = llm.ClassifyEmptyResponse()
	}
	return "", nil, lastErr
}

// agentLoop runs the reasoning/action cycle with a toolkit built from the
// request's internet/knowledge_base flags.
func (s *Server) agentLoop(ctx context.Context, provider llm.Provider, messages []llm.Message, req generateRequest) (answer, chatTitle, chatSummary string, err error) {
	registry := tools.NewRegistry()
	registry.Register(tools.NewReasoningTool())
	registry.Register(tools.NewFinalAnswerTool())

	if req.Internet {
		searxURL := req.SearchURL
		if searxURL == "" {
			searxURL = s.deps.Config.Search.URL
		}
		registry.Register(web.NewTool(searxURL).UseHeadlessBrowser(s.deps.Config.Search.UseHeadlessBrowser))
	}

	if req.KnowledgeBase {
		retriever, rerr := s.buildRetriever(ctx, req)
		if rerr != nil {
			return "", "", "", rerr
		}
		registry.Register(tools.NewRAGTool(retriever, s.deps.Config.RAG, s.deps.Config.RAG.TopK))
	}

	engine := &agent.Engine{LLM: provider, Tools: registry, StepLog: s.deps.StepLog}
	start := time.Now()
	result := engine.Execute(ctx, messages, agent.Config{
		MaxIterations:     s.deps.Config.Execution.MaxIterations,
		MaxRetries:        s.deps.Config.LLM.MaxRetries,
		MaxClarifications: s.deps.Config.Execution.MaxClarifications,
		Model:             req.LLMModelName,
		Temperature:       req.Temperature,
		MaxTokens:         req.MaxTokens,
	})
	latency := time.Since(start)

	errMessage := ""
	if result.Err != nil {
		errMessage = result.Err.Error()
	}
	s.deps.Analytics.Record(ctx, observability.Execution{
		State:      string(result.State),
		Model:      req.LLMModelName,
		Iterations: result.Iterations,
		ToolsUsed:  result.ToolsUsed,
		LatencyMS:  latency.Milliseconds(),
		ErrMessage: errMessage,
	})

	if result.State != agent.StateCompleted {
		if result.Err != nil {
			return "", "", "", result.Err
		}
		return "", "", "", errs.New(errs.KindAgentFailed, "agent did not reach a completed state")
	}
	return result.Answer, result.ChatTitle, result.ChatSummary, nil
}

func (s *Server) buildRetriever(ctx context.Context, req generateRequest) (*retrieve.Retriever, error) {
	vdbURL := req.VDBURL
	if vdbURL == "" {
		vdbURL = s.deps.Config.Qdrant.URL
	}
	if vdbURL == "" {
		return nil, errs.New(errs.KindMissingVDBURL, "vdb_url is required for knowledge_base mode")
	}

	embedder, err := s.buildEmbedder(req)
	if err != nil {
		return nil, err
	}

	store := s.deps.StoreCache.GetOrCreate(vdbURL, s.deps.Config.Qdrant.CollectionName, s.deps.Config.Qdrant.VectorSize, s.deps.Config.Qdrant.APIKey, s.deps.HTTPClient)

	var reranker retrieve.Reranker
	if s.deps.Config.RAG.Reranker.Enabled {
		reranker = retrieve.NewHTTPReranker(s.deps.Config.RAG.Reranker.URL, s.deps.Config.RAG.Reranker.Model, s.deps.HTTPClient)
	}
	return retrieve.New(store, embedder, reranker, s.deps.Config.Qdrant.CollectionName), nil
}

// buildEmbedder resolves per-request embedding credentials against config
// defaults. embed_api_key maps to the OAuth2 Basic-auth key; token URL and
// scope have no per-request override and always come from config.
func (s *Server) buildEmbedder(req generateRequest) (Embedder, error) {
	apiKey := req.EmbedAPIKey
	if apiKey == "" {
		apiKey = s.deps.Config.Embeddings.APIKey
	}
	if apiKey == "" {
		return nil, errs.New(errs.KindMissingEmbedAPIKey, "embed_api_key is required for knowledge_base mode")
	}
	baseURL := req.EmbedURL
	if baseURL == "" {
		baseURL = s.deps.Config.Embeddings.URL
	}
	model := req.EmbedModelName
	if model == "" {
		model = s.deps.Config.Embeddings.ModelName
	}

	if s.deps.EmbedFactory != nil {
		return s.deps.EmbedFactory(apiKey, baseURL, model), nil
	}

	return embedding.New(embedding.Config{
		BaseURL:    baseURL,
		TokenURL:   s.deps.Config.Embeddings.TokenURL,
		AuthKey:    apiKey,
		Scope:      s.deps.Config.Embeddings.Scope,
		Model:      model,
		BatchSize:  s.deps.Config.Embeddings.BatchSize,
		TokenCache: s.deps.TokenCache,
	}, s.deps.HTTPClient), nil
}

// buildScratch returns the configured scratch store for staging downloaded
// file bytes, falling back to the local no-op when no S3 bucket is set or
// the client fails to build (logged, never fatal to the index call).
func (s *Server) buildScratch(ctx context.Context) ingest.ScratchStore {
	bucket := s.deps.Config.Ingestion.Scratch.S3Bucket
	if bucket == "" {
		return nil
	}
	store, err := ingest.NewS3Scratch(ctx, bucket, s.deps.Config.Ingestion.Scratch.S3Region)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("s3 scratch init failed, using local scratch")
		return nil
	}
	return store
}

// ragManageRequest is the /v1/rag/manage request body.
type ragManageRequest struct {
	Action string `json:"action"` // "add" | "remove"
	IRVID  string `json:"irv_id"`
	VDBURL string `json:"vdb_url"`

	EmbedAPIKey    string `json:"embed_api_key"`
	EmbedURL       string `json:"embed_url"`
	EmbedModelName string `json:"embed_model_name"`
}

func (s *Server) handleRAGManage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ragManageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Action != "add" && req.Action != "remove" {
		respondError(w, errs.New(errs.KindInvalidAction, "action must be 'add' or 'remove'"))
		return
	}
	if strings.TrimSpace(req.IRVID) == "" {
		respondError(w, errs.New(errs.KindValidation, "irv_id is required"))
		return
	}

	vdbURL := req.VDBURL
	if vdbURL == "" {
		vdbURL = s.deps.Config.Qdrant.URL
	}
	if vdbURL == "" {
		respondError(w, errs.New(errs.KindMissingVDBURL, "vdb_url is required"))
		return
	}

	platformClient, err := platformClientFor(r)
	if err != nil {
		respondError(w, err)
		return
	}

	store := s.deps.StoreCache.GetOrCreate(vdbURL, s.deps.Config.Qdrant.CollectionName, s.deps.Config.Qdrant.VectorSize, s.deps.Config.Qdrant.APIKey, s.deps.HTTPClient)

	if req.Action == "remove" {
		idx := ingest.New(platformClient, store, nil, ingest.Config{
			Collection: s.deps.Config.Qdrant.CollectionName,
			VectorSize: s.deps.Config.Qdrant.VectorSize,
		})
		if err := idx.Remove(ctx, req.IRVID); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, map[string]any{"ok": true, "action": "remove", "irv_id": req.IRVID})
		return
	}

	if s.deps.Queue != nil {
		referer, jsessionID := platformCredentials(r)
		if err := s.deps.Queue.Enqueue(ctx, req.IRVID, referer, jsessionID); err != nil {
			respondError(w, errs.Wrap(errs.KindConnectionError, true, err))
			return
		}
		respondJSON(w, map[string]any{"ok": true, "action": "add", "irv_id": req.IRVID, "queued": true})
		return
	}

	embedder, err := s.buildEmbedder(generateRequest{EmbedAPIKey: req.EmbedAPIKey, EmbedURL: req.EmbedURL, EmbedModelName: req.EmbedModelName})
	if err != nil {
		respondError(w, err)
		return
	}
	idx := ingest.New(platformClient, store, embedder, ingest.Config{
		Collection: s.deps.Config.Qdrant.CollectionName,
		VectorSize: s.deps.Config.Qdrant.VectorSize,
		BatchSize:  s.deps.Config.Embeddings.BatchSize,
		Scratch:    s.buildScratch(ctx),
	})
	result, err := idx.Add(ctx, req.IRVID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]any{
		"ok":                 true,
		"action":             "add",
		"irv_id":             req.IRVID,
		"files_processed":    result.FilesProcessed,
		"chunks_saved":       result.ChunksSaved,
		"toc_chunks_saved":   result.TOCChunksSaved,
		"table_chunks_saved": result.TableChunksSaved,
	})
}

type ragHealthRequest struct {
	VDBURL         string `json:"vdb_url"`
	EmbedAPIKey    string `json:"embed_api_key"`
	EmbedURL       string `json:"embed_url"`
	EmbedModelName string `json:"embed_model_name"`
}

// handleRAGHealth probes the vector store and embedding endpoint
// independently. "available" (with "error" when false) reports vector-store
// reachability; "healthy" covers both probes, and "details" holds the
// per-dependency results.
func (s *Server) handleRAGHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ragHealthRequest
	_ = decodeBody(r, &req) // body is optional; zero value falls back to config defaults

	details := map[string]any{}
	healthy := true
	available := false
	vectorErr := "vector store unreachable"

	vdbURL := req.VDBURL
	if vdbURL == "" {
		vdbURL = s.deps.Config.Qdrant.URL
	}
	if vdbURL == "" {
		details["vector_store"] = map[string]any{"ok": false, "error": string(errs.KindMissingVDBURL)}
		vectorErr = string(errs.KindMissingVDBURL)
		healthy = false
	} else {
		store := s.deps.StoreCache.GetOrCreate(vdbURL, s.deps.Config.Qdrant.CollectionName, s.deps.Config.Qdrant.VectorSize, s.deps.Config.Qdrant.APIKey, s.deps.HTTPClient)
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		ok, err := store.CheckConnection(checkCtx, 5*time.Second)
		cancel()
		if err != nil || !ok {
			healthy = false
			if err != nil {
				vectorErr = err.Error()
			}
			details["vector_store"] = map[string]any{"ok": false, "error": errMessage(err)}
		} else {
			available = true
			details["vector_store"] = map[string]any{"ok": true}
		}
	}

	embedder, err := s.buildEmbedder(generateRequest{EmbedAPIKey: req.EmbedAPIKey, EmbedURL: req.EmbedURL, EmbedModelName: req.EmbedModelName})
	if err != nil {
		healthy = false
		details["embedding"] = map[string]any{"ok": false, "error": errMessage(err)}
	} else {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := embedder.CheckReachability(checkCtx)
		cancel()
		if err != nil {
			healthy = false
			details["embedding"] = map[string]any{"ok": false, "error": errMessage(err)}
		} else {
			details["embedding"] = map[string]any{"ok": true}
		}
	}

	resp := map[string]any{"available": available, "healthy": healthy, "details": details}
	if !available {
		resp["error"] = vectorErr
	}
	respondJSON(w, resp)
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type collectionsRequest struct {
	VDBURL string `json:"vdb_url"`
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req collectionsRequest
	_ = decodeBody(r, &req)

	vdbURL := req.VDBURL
	if vdbURL == "" {
		vdbURL = s.deps.Config.Qdrant.URL
	}
	if vdbURL == "" {
		respondError(w, errs.New(errs.KindMissingVDBURL, "vdb_url is required"))
		return
	}

	store := s.deps.StoreCache.GetOrCreate(vdbURL, s.deps.Config.Qdrant.CollectionName, s.deps.Config.Qdrant.VectorSize, s.deps.Config.Qdrant.APIKey, s.deps.HTTPClient)
	infos, err := store.ListCollections(ctx)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]any{"collections": infos})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	if strings.TrimSpace(name) == "" {
		respondError(w, errs.New(errs.KindMissingCollection, "collection name is required"))
		return
	}

	vdbURL := r.URL.Query().Get("vdb_url")
	if vdbURL == "" {
		vdbURL = s.deps.Config.Qdrant.URL
	}
	if vdbURL == "" {
		respondError(w, errs.New(errs.KindMissingVDBURL, "vdb_url is required"))
		return
	}

	store := vectorstore.New(vdbURL, s.deps.Config.Qdrant.APIKey, s.deps.HTTPClient)
	if err := store.DeleteCollection(ctx, name); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]any{"ok": true, "deleted": name})
}

func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	count, baseURLs := s.deps.LLMCache.Info()
	respondJSON(w, map[string]any{"count": count, "base_urls": baseURLs})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.deps.LLMCache.Clear()
	respondJSON(w, map[string]any{"ok": true})
}
