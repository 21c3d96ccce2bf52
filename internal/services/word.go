package services

import (
  "archive/zip"
  "bytes"
  "encoding/xml"
  "fmt"
  "io"
  "mime"
  "path"
  "strconv"
  "strings"
  "time"
)

// DocxExtraction is the structured representation of a Word document:
// metadata, text with its outline, tables and embedded images.
type DocxExtraction struct {
  Filename           string            `json:"filename"`
  ExtractedAt        time.Time         `json:"extractedAt"`
  DocumentProperties map[string]string `json:"documentProperties,omitempty"`
  Content            DocxContent       `json:"content"`
  Tables             []DocxTable       `json:"tables,omitempty"`
  Images             []EmbeddedImage   `json:"images,omitempty"`
  Summary            DocxSummary       `json:"summary"`
}

type DocxContent struct {
  RawText   string        `json:"rawText"`
  Structure DocxStructure `json:"structure"`
}

type DocxStructure struct {
  Headings   []DocxHeading `json:"headings"`
  Paragraphs []string      `json:"paragraphs"`
  Lists      [][]string    `json:"lists"`
}

type DocxHeading struct {
  Level int    `json:"level"`
  Text  string `json:"text"`
}

type DocxTable struct {
  Rows [][]string `json:"rows"`
}

type DocxSummary struct {
  HeadingCount   int `json:"headingCount"`
  ParagraphCount int `json:"paragraphCount"`
  ListCount      int `json:"listCount"`
  TableCount     int `json:"tableCount"`
  ImageCount     int `json:"imageCount"`
}

// coreProperties mirrors docProps/core.xml. Fields are matched by local
// name so the cp/dc namespace prefixes do not matter.
type coreProperties struct {
  Title          string `xml:"title"`
  Subject        string `xml:"subject"`
  Creator        string `xml:"creator"`
  Keywords       string `xml:"keywords"`
  Description    string `xml:"description"`
  LastModifiedBy string `xml:"lastModifiedBy"`
  Created        string `xml:"created"`
  Modified       string `xml:"modified"`
}

func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
  for _, f := range zr.File {
    if f.Name != name {
      continue
    }
    rc, err := f.Open()
    if err != nil {
      return nil, fmt.Errorf("open %s: %w", name, err)
    }
    defer func() { _ = rc.Close() }()
    return io.ReadAll(rc)
  }
  return nil, nil
}

// parseDocx walks word/document.xml once, classifying paragraphs into
// headings, list items and body text, and collecting table rows. Media
// parts become EmbeddedImage entries awaiting model analysis.
func parseDocx(raw []byte) (*DocxExtraction, []string, error) {
  zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
  if err != nil {
    return nil, nil, fmt.Errorf("open docx archive: %w", err)
  }

  docXML, err := readZipPart(zr, "word/document.xml")
  if err != nil {
    return nil, nil, err
  }
  if docXML == nil {
    return nil, nil, fmt.Errorf("word/document.xml missing")
  }

  out := &DocxExtraction{}
  var warnings []string

  if propsXML, propsErr := readZipPart(zr, "docProps/core.xml"); propsErr == nil && propsXML != nil {
    var props coreProperties
    if err := xml.Unmarshal(propsXML, &props); err != nil {
      warnings = append(warnings, fmt.Sprintf("core properties unreadable: %v", err))
    } else {
      out.DocumentProperties = corePropsMap(props)
    }
  }

  var (
    rawText    strings.Builder
    paraBuf    strings.Builder
    cellBuf    strings.Builder
    paraStyle  string
    paraInList bool
    inText     bool
    tableDepth int
    curRow     []string
    curList    []string
  )

  flushList := func() {
    if len(curList) > 0 {
      out.Content.Structure.Lists = append(out.Content.Structure.Lists, curList)
      curList = nil
    }
  }
  flushParagraph := func() {
    text := strings.TrimSpace(paraBuf.String())
    paraBuf.Reset()
    if text == "" {
      return
    }
    switch {
    case strings.HasPrefix(paraStyle, "Heading"):
      level := 1
      if n, convErr := strconv.Atoi(strings.TrimPrefix(paraStyle, "Heading")); convErr == nil && n > 0 {
        level = n
      }
      flushList()
      out.Content.Structure.Headings = append(out.Content.Structure.Headings, DocxHeading{Level: level, Text: text})
    case paraInList:
      curList = append(curList, text)
    default:
      flushList()
      out.Content.Structure.Paragraphs = append(out.Content.Structure.Paragraphs, text)
    }
  }
  active := func() *strings.Builder {
    if tableDepth > 0 {
      return &cellBuf
    }
    return &paraBuf
  }

  dec := xml.NewDecoder(bytes.NewReader(docXML))
  for {
    tok, tokErr := dec.Token()
    if tokErr == io.EOF {
      break
    }
    if tokErr != nil {
      warnings = append(warnings, fmt.Sprintf("document.xml truncated: %v", tokErr))
      break
    }
    switch t := tok.(type) {
    case xml.StartElement:
      switch t.Name.Local {
      case "tbl":
        tableDepth++
        if tableDepth == 1 {
          out.Tables = append(out.Tables, DocxTable{})
        }
      case "tr":
        if tableDepth == 1 {
          curRow = nil
        }
      case "tc":
        if tableDepth == 1 {
          cellBuf.Reset()
        }
      case "p":
        if tableDepth == 0 {
          paraStyle = ""
          paraInList = false
        }
      case "pStyle":
        for _, attr := range t.Attr {
          if attr.Name.Local == "val" {
            paraStyle = attr.Value
          }
        }
      case "numPr":
        paraInList = true
      case "t":
        inText = true
      case "tab":
        active().WriteByte('\t')
        rawText.WriteByte('\t')
      case "br":
        active().WriteByte('\n')
        rawText.WriteByte('\n')
      }
    case xml.EndElement:
      switch t.Name.Local {
      case "t":
        inText = false
      case "p":
        rawText.WriteByte('\n')
        if tableDepth == 0 {
          flushParagraph()
        } else {
          cellBuf.WriteByte('\n')
        }
      case "tc":
        if tableDepth == 1 {
          curRow = append(curRow, strings.TrimSpace(cellBuf.String()))
        }
      case "tr":
        rawText.WriteByte('\n')
        if tableDepth == 1 && len(out.Tables) > 0 {
          last := len(out.Tables) - 1
          out.Tables[last].Rows = append(out.Tables[last].Rows, curRow)
        }
      case "tbl":
        if tableDepth > 0 {
          tableDepth--
        }
      }
    case xml.CharData:
      if inText {
        active().Write(t)
        rawText.Write(t)
      }
    }
  }
  flushList()

  out.Content.RawText = strings.TrimSpace(rawText.String())
  if out.Content.RawText == "" {
    warnings = append(warnings, "document contains no extractable text")
  }

  for _, f := range zr.File {
    if !strings.HasPrefix(f.Name, "word/media/") {
      continue
    }
    rc, openErr := f.Open()
    if openErr != nil {
      warnings = append(warnings, fmt.Sprintf("media part %s skipped: %v", f.Name, openErr))
      continue
    }
    data, readErr := io.ReadAll(rc)
    _ = rc.Close()
    if readErr != nil {
      warnings = append(warnings, fmt.Sprintf("media part %s skipped: %v", f.Name, readErr))
      continue
    }
    name := path.Base(f.Name)
    out.Images = append(out.Images, EmbeddedImage{
      ID:          fmt.Sprintf("image%d", len(out.Images)+1),
      Name:        name,
      ContentType: mime.TypeByExtension(path.Ext(name)),
      data:        data,
    })
  }

  out.Summary = DocxSummary{
    HeadingCount:   len(out.Content.Structure.Headings),
    ParagraphCount: len(out.Content.Structure.Paragraphs),
    ListCount:      len(out.Content.Structure.Lists),
    TableCount:     len(out.Tables),
    ImageCount:     len(out.Images),
  }
  return out, warnings, nil
}

func corePropsMap(props coreProperties) map[string]string {
  fields := map[string]string{
    "title":          props.Title,
    "subject":        props.Subject,
    "creator":        props.Creator,
    "keywords":       props.Keywords,
    "description":    props.Description,
    "lastModifiedBy": props.LastModifiedBy,
    "created":        props.Created,
    "modified":       props.Modified,
  }
  out := make(map[string]string, len(fields))
  for k, v := range fields {
    if v != "" {
      out[k] = v
    }
  }
  if len(out) == 0 {
    return nil
  }
  return out
}
