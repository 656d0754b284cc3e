// Package transcript loads and saves a chat conversation as a versioned
// JSON file ("chat_history.json") attached to an information-object
// version in the document platform.
package transcript

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ragqa/internal/observability"
	"ragqa/internal/platform"
)

const (
	fileName         = "chat_history.json"
	dialogsFolder    = "Диалоги с ИИ-помощником"
	dialogsFolderDoc = "Папка содержит информационные объекты с сохранёнными диалогами с ИИ-помощником."
)

// Message is one transcript turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store loads and saves transcripts through one platform client.
type Store struct {
	platform *platform.Client
	mirror   *PostgresMirror
}

func New(p *platform.Client) *Store {
	return &Store{platform: p}
}

// WithMirror attaches an optional Postgres metadata index; every
// successful Save is also recorded there. Chaining keeps New's signature
// unchanged for the common mirror-less case.
func (s *Store) WithMirror(m *PostgresMirror) *Store {
	s.mirror = m
	return s
}

// Load fetches the prior transcript, if any. objectExists reports whether
// the referenced object version is real, independent of whether a
// transcript file was found on it (a prior object with no chat_history.json
// still needs a new version rather than a new object on save).
func (s *Store) Load(ctx context.Context, chatHistoryIRVID string) (messages []Message, objectExists bool) {
	chatHistoryIRVID = strings.TrimSpace(chatHistoryIRVID)
	if chatHistoryIRVID == "" {
		return nil, false
	}
	logger := observability.LoggerWithTrace(ctx)

	ov, err := s.platform.GetObjectVersion(ctx, chatHistoryIRVID, true, true)
	if err != nil {
		logger.Warn().Err(err).Str("chat_history_irv_id", chatHistoryIRVID).Msg("transcript_load_object_missing")
		return nil, false
	}

	file := findFile(ov.Files, fileName)
	if file.ID == "" {
		logger.Warn().Str("chat_history_irv_id", chatHistoryIRVID).Msg("transcript_load_file_missing")
		return nil, true
	}

	content, err := s.platform.GetFileContent(ctx, file)
	if err != nil {
		logger.Warn().Err(err).Msg("transcript_load_content_error")
		return nil, true
	}

	parsed, err := parseTranscriptBody(content)
	if err != nil {
		logger.Warn().Err(err).Msg("transcript_load_parse_error")
		return nil, true
	}
	return parsed, true
}

// parseTranscriptBody tolerates base64-or-bytes-or-dict envelopes around
// the {"messages": [...]} JSON the platform may return for file content.
func parseTranscriptBody(raw []byte) ([]Message, error) {
	body := raw
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		if decoded, err := base64.StdEncoding.DecodeString(asString); err == nil {
			body = decoded
		} else {
			body = []byte(asString)
		}
	}

	var envelope struct {
		Content json.RawMessage `json:"content"`
	}
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Content) > 0 {
		body = envelope.Content
	}

	return normalizeMessages(body)
}

func normalizeMessages(body []byte) ([]Message, error) {
	var list []Message
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		return list, nil
	}
	var wrapped struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Messages, nil
}

func findFile(files []platform.FileDescriptor, name string) platform.FileDescriptor {
	for _, f := range files {
		if f.Name == name {
			return f
		}
	}
	return platform.FileDescriptor{}
}

// SaveInput carries everything Save needs beyond the platform handle.
type SaveInput struct {
	ChatHistoryIRVID string // prior transcript object-version id, if any
	ObjectExists     bool   // Load's second return value
	IRVID            string // the current document's object-version id (naming/parent source for a fresh transcript)
	ChatTitle        string
	ChatSummary      string
	FullMessages     []Message
}

// SaveResult describes the transcript object-version the save produced.
type SaveResult struct {
	NewIRVID string
}

// Save writes the full message history back to the platform, creating a
// fresh transcript object or a new version of the existing one. Per the
// error-handling policy, save failures are never fatal to the enclosing
// request; callers should log and continue without a chat_history
// descriptor.
func (s *Store) Save(ctx context.Context, in SaveInput) (SaveResult, error) {
	var (
		result   SaveResult
		objectID string
		err      error
	)
	if in.ChatHistoryIRVID != "" && in.ObjectExists {
		result, objectID, err = s.saveUpdate(ctx, in)
	} else {
		result, objectID, err = s.saveNew(ctx, in)
	}
	if err == nil && s.mirror != nil {
		s.mirror.Record(ctx, objectID, result.NewIRVID, in.ChatHistoryIRVID, in.ChatTitle)
	}
	return result, err
}

func (s *Store) saveNew(ctx context.Context, in SaveInput) (SaveResult, string, error) {
	if strings.TrimSpace(in.IRVID) == "" {
		return SaveResult{}, "", fmt.Errorf("no source document irv_id to derive a transcript location from")
	}
	current, err := s.platform.GetObjectVersion(ctx, in.IRVID, true, false)
	if err != nil {
		return SaveResult{}, "", err
	}
	if current.ParentID == "" || current.NamingAuth == "" {
		return SaveResult{}, "", fmt.Errorf("source document %s is missing parent folder or naming authority", in.IRVID)
	}

	folderID, err := s.ensureDialogsFolder(ctx, current.ParentID)
	if err != nil {
		return SaveResult{}, "", err
	}

	title := firstNonEmpty(in.ChatTitle, firstMessagePreview(in.FullMessages))
	name := stampedName(title)

	result, err := s.createVersionWithFile(ctx, platform.CreateObjectRequest{
		Name:           name,
		ParentFolderID: folderID,
		NamingAuthID:   current.NamingAuth,
		Description:    in.ChatSummary,
		FileName:       fileName,
	}, in.FullMessages)
	// A fresh transcript's first version IS the object; its own id is the
	// stable object id future versions will reference via ObjectID.
	return result, result.NewIRVID, err
}

func (s *Store) saveUpdate(ctx context.Context, in SaveInput) (SaveResult, string, error) {
	current, err := s.platform.GetObjectVersion(ctx, in.ChatHistoryIRVID, true, false)
	if err != nil {
		return SaveResult{}, "", err
	}
	if current.ID == "" || current.ParentID == "" || current.NamingAuth == "" {
		return SaveResult{}, "", fmt.Errorf("prior transcript object %s is missing required fields", in.ChatHistoryIRVID)
	}

	baseName := current.Name
	if idx := strings.LastIndex(baseName, "#"); idx >= 0 {
		baseName = baseName[:idx]
	}
	if baseName == "" {
		baseName = firstNonEmpty(in.ChatTitle, firstMessagePreview(in.FullMessages))
	}
	name := stampedName(baseName)

	result, err := s.createVersionWithFile(ctx, platform.CreateObjectRequest{
		Name:           name,
		ParentFolderID: current.ParentID,
		NamingAuthID:   current.NamingAuth,
		Description:    in.ChatSummary,
		FileName:       fileName,
		ObjectID:       current.ID,
	}, in.FullMessages)
	return result, current.ID, err
}

func (s *Store) createVersionWithFile(ctx context.Context, req platform.CreateObjectRequest, messages []Message) (SaveResult, error) {
	created, err := s.platform.CreateObject(ctx, req)
	if err != nil {
		return SaveResult{}, err
	}
	newID, _ := created["id"].(string)
	if newID == "" {
		return SaveResult{}, fmt.Errorf("create_object response did not include an id")
	}

	newVersion, err := s.platform.GetObjectVersion(ctx, newID, true, true)
	if err != nil {
		return SaveResult{}, err
	}
	file := findFile(newVersion.Files, fileName)
	if file.ID == "" {
		return SaveResult{}, fmt.Errorf("created object version %s has no %s file", newID, fileName)
	}

	body, err := json.MarshalIndent(map[string]any{"messages": messages}, "", "  ")
	if err != nil {
		return SaveResult{}, err
	}
	if err := s.platform.PutFileContent(ctx, file, body); err != nil {
		return SaveResult{}, err
	}
	return SaveResult{NewIRVID: newID}, nil
}

func (s *Store) ensureDialogsFolder(ctx context.Context, parentID string) (string, error) {
	created, err := s.platform.CreateFolder(ctx, dialogsFolder, parentID, dialogsFolderDoc)
	if err != nil {
		return "", err
	}
	id, _ := created["id"].(string)
	if id == "" {
		return "", fmt.Errorf("create_folder response did not include an id")
	}
	return id, nil
}

func stampedName(base string) string {
	return fmt.Sprintf("%s#%s", base, time.Now().Format("20060102150405"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "Диалог"
}

func firstMessagePreview(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	content := messages[0].Content
	if len(content) > 80 {
		content = content[:80]
	}
	return content
}
