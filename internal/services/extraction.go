package services

import (
  "context"
  "encoding/base64"
  "encoding/json"
  "fmt"
  "os"
  "path/filepath"
  "strings"
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
  "github.com/auditlens/auditlens-backend/internal/utils"
)

// DocumentFormat is the closed set of evidence formats the extractor
// understands. Anything else is rejected up front.
type DocumentFormat string

const (
  FormatDocx  DocumentFormat = "docx"
  FormatXlsx  DocumentFormat = "xlsx"
  FormatPDF   DocumentFormat = "pdf"
  FormatImage DocumentFormat = "image"
)

const imageExtractionPrompt = "This image is a screenshot from MS active directory showing Policy settings, analyse the image and extract the settings into a JSON file"

const pdfExtractionPrompt = "extract settings from this document"

// DetectFormat classifies a document by mime type first, file extension
// second.
func DetectFormat(name, mimeType string) (DocumentFormat, error) {
  mt := strings.ToLower(strings.TrimSpace(mimeType))
  switch {
  case strings.Contains(mt, "wordprocessingml"), strings.Contains(mt, "msword"):
    return FormatDocx, nil
  case strings.Contains(mt, "spreadsheetml"), strings.Contains(mt, "ms-excel"):
    return FormatXlsx, nil
  case mt == "application/pdf":
    return FormatPDF, nil
  case strings.HasPrefix(mt, "image/"):
    return FormatImage, nil
  }
  switch strings.ToLower(filepath.Ext(name)) {
  case ".doc", ".docx":
    return FormatDocx, nil
  case ".xls", ".xlsx":
    return FormatXlsx, nil
  case ".pdf":
    return FormatPDF, nil
  case ".png", ".jpg", ".jpeg", ".gif", ".webp":
    return FormatImage, nil
  }
  return "", apierr.Validation(fmt.Sprintf("unsupported document format: %s", name))
}

func imageMimeType(name, mimeType string) string {
  mt := strings.ToLower(strings.TrimSpace(mimeType))
  if strings.HasPrefix(mt, "image/") {
    return mt
  }
  switch strings.ToLower(filepath.Ext(name)) {
  case ".jpg", ".jpeg":
    return "image/jpeg"
  case ".gif":
    return "image/gif"
  case ".webp":
    return "image/webp"
  default:
    return "image/png"
  }
}

type ExtractionService interface {
  // ExtractEvidenceDetails extracts a machine-readable representation of the
  // document and persists it to evidence_ai_details. Warnings carry
  // non-fatal degradations (empty sheets, skipped parts).
  ExtractEvidenceDetails(ctx context.Context, tenantID, documentID uuid.UUID) (datatypes.JSON, []string, error)
}

type extractionService struct {
  log         *logger.Logger
  docs        repos.EvidenceDocumentRepo
  callLog     repos.AICallLogRepo
  gemini      GeminiClient
  uploadsRoot string
}

func NewExtractionService(baseLog *logger.Logger, docs repos.EvidenceDocumentRepo, callLog repos.AICallLogRepo, gemini GeminiClient) ExtractionService {
  log := baseLog.With("service", "ExtractionService")
  return &extractionService{
    log:         log,
    docs:        docs,
    callLog:     callLog,
    gemini:      gemini,
    uploadsRoot: utils.GetEnv("UPLOADS_DIR", "uploads", log),
  }
}

func (s *extractionService) ExtractEvidenceDetails(ctx context.Context, tenantID, documentID uuid.UUID) (datatypes.JSON, []string, error) {
  doc, err := s.docs.GetByID(ctx, nil, tenantID, documentID)
  if err != nil {
    return nil, nil, err
  }
  if doc == nil {
    return nil, nil, apierr.NotFound("evidence document")
  }

  format, err := DetectFormat(doc.DocumentName, doc.MimeType)
  if err != nil {
    return nil, nil, err
  }

  path := filepath.Join(s.uploadsRoot, filepath.Clean(doc.ArtifactURL))
  raw, err := os.ReadFile(path)
  if err != nil {
    return nil, nil, apierr.NotFound("evidence artifact")
  }

  var (
    details  datatypes.JSON
    warnings []string
  )

  switch format {
  case FormatDocx:
    details, warnings, err = s.extractDocx(ctx, doc, raw)
  case FormatXlsx:
    details, warnings, err = s.extractXlsx(ctx, doc, raw)
  case FormatPDF:
    details, err = s.extractWithModel(ctx, doc, pdfExtractionPrompt, "application/pdf", raw)
  case FormatImage:
    details, err = s.extractWithModel(ctx, doc, imageExtractionPrompt, imageMimeType(doc.DocumentName, doc.MimeType), raw)
  }
  if err != nil {
    return nil, warnings, err
  }

  if err := s.docs.UpdateAIDetails(ctx, nil, tenantID, documentID, details); err != nil {
    return nil, warnings, err
  }

  s.log.Info("extracted evidence details",
    "document_id", documentID.String(),
    "format", string(format),
    "warnings", len(warnings),
  )
  return details, warnings, nil
}

// EmbeddedImage is one picture found inside a docx or xlsx archive. The
// raw bytes stay unexported so serialized payloads never carry buffers;
// only the model's analysis or the per-image failure survives.
type EmbeddedImage struct {
  ID              string          `json:"id"`
  Name            string          `json:"name,omitempty"`
  Sheet           string          `json:"sheet,omitempty"`
  Cell            string          `json:"cell,omitempty"`
  ContentType     string          `json:"contentType,omitempty"`
  Analysis        json.RawMessage `json:"analysis,omitempty"`
  ExtractionError string          `json:"extractionError,omitempty"`

  data []byte
}

// ---- native parsing ----

func (s *extractionService) extractDocx(ctx context.Context, doc *types.EvidenceDocument, raw []byte) (datatypes.JSON, []string, error) {
  extraction, warnings, err := parseDocx(raw)
  if err != nil {
    return nil, warnings, apierr.Validation(fmt.Sprintf("could not parse docx: %v", err))
  }
  extraction.Filename = doc.DocumentName
  extraction.ExtractedAt = time.Now().UTC()
  extraction.Images = s.analyzeEmbeddedImages(ctx, doc, extraction.Images)
  extraction.Summary.ImageCount = len(extraction.Images)

  b, err := json.Marshal(extraction)
  if err != nil {
    return nil, warnings, err
  }
  return datatypes.JSON(b), warnings, nil
}

func (s *extractionService) extractXlsx(ctx context.Context, doc *types.EvidenceDocument, raw []byte) (datatypes.JSON, []string, error) {
  extraction, warnings, err := parseXlsx(raw)
  if err != nil {
    return nil, warnings, apierr.Validation(fmt.Sprintf("could not parse xlsx: %v", err))
  }
  extraction.Filename = doc.DocumentName
  extraction.ExtractedAt = time.Now().UTC()
  extraction.Images = s.analyzeEmbeddedImages(ctx, doc, extraction.Images)
  extraction.Summary.ImageCount = len(extraction.Images)

  b, err := json.Marshal(extraction)
  if err != nil {
    return nil, warnings, err
  }
  return datatypes.JSON(b), warnings, nil
}

// analyzeEmbeddedImages runs every embedded image through the model in
// chunks. A single image failing lands in its extractionError field and
// never aborts the surrounding document.
func (s *extractionService) analyzeEmbeddedImages(ctx context.Context, doc *types.EvidenceDocument, images []EmbeddedImage) []EmbeddedImage {
  if len(images) == 0 {
    return images
  }
  outcomes := RunBatched(ctx, images, defaultBatchSize, func(ctx context.Context, img EmbeddedImage) (json.RawMessage, error) {
    mimeType := img.ContentType
    if mimeType == "" {
      mimeType = "image/png"
    }
    parts := []GeminiPart{
      {Text: imageExtractionPrompt},
      {InlineData: &GeminiInlineData{
        MimeType: mimeType,
        Data:     base64.StdEncoding.EncodeToString(img.data),
      }},
    }
    started := time.Now()
    reply, err := s.gemini.GenerateContent(ctx, parts)
    s.recordCall(ctx, doc, imageExtractionPrompt, reply, time.Since(started), err)
    if err != nil {
      return nil, err
    }
    var parsed map[string]any
    if decErr := DecodeModelJSON(reply, &parsed); decErr != nil {
      return nil, decErr
    }
    b, _ := json.Marshal(parsed)
    return json.RawMessage(b), nil
  })
  for i, out := range outcomes {
    images[i].data = nil
    if out.Err != nil {
      images[i].ExtractionError = out.Err.Error()
      continue
    }
    images[i].Analysis = out.Value
  }
  return images
}

// ---- model-backed extraction ----

func (s *extractionService) extractWithModel(ctx context.Context, doc *types.EvidenceDocument, prompt, mimeType string, raw []byte) (datatypes.JSON, error) {
  parts := []GeminiPart{
    {Text: prompt},
    {InlineData: &GeminiInlineData{
      MimeType: mimeType,
      Data:     base64.StdEncoding.EncodeToString(raw),
    }},
  }

  started := time.Now()
  reply, err := s.gemini.GenerateContent(ctx, parts)
  s.recordCall(ctx, doc, prompt, reply, time.Since(started), err)
  if err != nil {
    return nil, err
  }

  var parsed map[string]any
  if decErr := DecodeModelJSON(reply, &parsed); decErr != nil {
    return nil, decErr
  }
  b, _ := json.Marshal(parsed)
  return datatypes.JSON(b), nil
}

func (s *extractionService) recordCall(ctx context.Context, doc *types.EvidenceDocument, prompt, reply string, took time.Duration, callErr error) {
  if s.callLog == nil {
    return
  }
  entry := &types.AICallLog{
    TenantID:   &doc.TenantID,
    ContextID:  &doc.ID,
    CallType:   "evidence_extraction",
    Model:      s.gemini.Model(),
    Prompt:     prompt,
    Response:   reply,
    Success:    callErr == nil,
    DurationMS: took.Milliseconds(),
  }
  if callErr != nil {
    entry.Error = callErr.Error()
  }
  if err := s.callLog.Create(ctx, nil, entry); err != nil {
    s.log.Warn("failed to record ai call", "error", err)
  }
}
