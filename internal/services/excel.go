package services

import (
  "bytes"
  "fmt"
  "mime"
  "strings"
  "time"

  "github.com/xuri/excelize/v2"
)

// XlsxExtraction is the structured representation of a workbook: every
// sheet with its typed cells, merges, validations and comments, plus the
// embedded images awaiting model analysis.
type XlsxExtraction struct {
  Filename    string          `json:"filename"`
  ExtractedAt time.Time       `json:"extractedAt"`
  Sheets      []XlsxSheet     `json:"sheets"`
  Images      []EmbeddedImage `json:"images,omitempty"`
  Summary     XlsxSummary     `json:"summary"`
}

type XlsxSheet struct {
  Name            string            `json:"name"`
  Dimensions      XlsxDimensions    `json:"dimensions"`
  Cells           []XlsxCell        `json:"cells"`
  MergedCells     []XlsxMergedRange `json:"mergedCells,omitempty"`
  DataValidations []XlsxValidation  `json:"dataValidations,omitempty"`
  Comments        []XlsxComment     `json:"comments,omitempty"`
}

type XlsxDimensions struct {
  Rows    int `json:"rows"`
  Columns int `json:"columns"`
}

type XlsxCell struct {
  Address   string `json:"address"`
  Row       int    `json:"row"`
  Column    int    `json:"column"`
  Raw       string `json:"raw"`
  Formatted string `json:"formatted"`
  Type      string `json:"type"`
}

type XlsxMergedRange struct {
  Start string `json:"start"`
  End   string `json:"end"`
}

type XlsxValidation struct {
  Range    string `json:"range"`
  Type     string `json:"type,omitempty"`
  Operator string `json:"operator,omitempty"`
  Formula1 string `json:"formula1,omitempty"`
  Formula2 string `json:"formula2,omitempty"`
}

type XlsxComment struct {
  Cell   string `json:"cell"`
  Author string `json:"author,omitempty"`
  Text   string `json:"text"`
}

type XlsxSummary struct {
  SheetCount      int `json:"sheetCount"`
  CellCount       int `json:"cellCount"`
  MergedCellCount int `json:"mergedCellCount"`
  CommentCount    int `json:"commentCount"`
  ImageCount      int `json:"imageCount"`
}

func cellTypeName(t excelize.CellType, raw string) string {
  switch t {
  case excelize.CellTypeBool:
    return "boolean"
  case excelize.CellTypeDate:
    return "date"
  case excelize.CellTypeError:
    return "error"
  case excelize.CellTypeFormula:
    return "formula"
  case excelize.CellTypeInlineString:
    return "richText"
  case excelize.CellTypeNumber:
    return "number"
  case excelize.CellTypeSharedString:
    return "string"
  }
  if raw == "" {
    return "empty"
  }
  return "string"
}

// parseXlsx walks every worksheet and extracts the non-empty cells with
// their raw and formatted values. Sheet-level errors degrade to warnings
// so one broken sheet never loses the rest of the workbook.
func parseXlsx(raw []byte) (*XlsxExtraction, []string, error) {
  wb, err := excelize.OpenReader(bytes.NewReader(raw))
  if err != nil {
    return nil, nil, fmt.Errorf("open workbook: %w", err)
  }
  defer func() { _ = wb.Close() }()

  out := &XlsxExtraction{}
  var warnings []string

  for _, sheetName := range wb.GetSheetList() {
    formatted, rowsErr := wb.GetRows(sheetName)
    if rowsErr != nil {
      warnings = append(warnings, fmt.Sprintf("sheet %q skipped: %v", sheetName, rowsErr))
      continue
    }
    rawRows, rowsErr := wb.GetRows(sheetName, excelize.Options{RawCellValue: true})
    if rowsErr != nil {
      rawRows = nil
    }

    sheet := XlsxSheet{Name: sheetName}
    for r, row := range formatted {
      if len(row) > sheet.Dimensions.Columns {
        sheet.Dimensions.Columns = len(row)
      }
      for c, value := range row {
        rawValue := ""
        if r < len(rawRows) && c < len(rawRows[r]) {
          rawValue = rawRows[r][c]
        }
        if value == "" && rawValue == "" {
          continue
        }
        addr, coordErr := excelize.CoordinatesToCellName(c+1, r+1)
        if coordErr != nil {
          continue
        }
        cellType, _ := wb.GetCellType(sheetName, addr)
        sheet.Cells = append(sheet.Cells, XlsxCell{
          Address:   addr,
          Row:       r + 1,
          Column:    c + 1,
          Raw:       rawValue,
          Formatted: value,
          Type:      cellTypeName(cellType, rawValue),
        })
      }
    }
    sheet.Dimensions.Rows = len(formatted)
    if len(sheet.Cells) == 0 {
      warnings = append(warnings, fmt.Sprintf("sheet %q is empty", sheetName))
    }

    if merges, mergeErr := wb.GetMergeCells(sheetName); mergeErr == nil {
      for _, m := range merges {
        sheet.MergedCells = append(sheet.MergedCells, XlsxMergedRange{
          Start: m.GetStartAxis(),
          End:   m.GetEndAxis(),
        })
      }
    }
    if validations, dvErr := wb.GetDataValidations(sheetName); dvErr == nil {
      for _, dv := range validations {
        if dv == nil {
          continue
        }
        sheet.DataValidations = append(sheet.DataValidations, XlsxValidation{
          Range:    dv.Sqref,
          Type:     dv.Type,
          Operator: dv.Operator,
          Formula1: dv.Formula1,
          Formula2: dv.Formula2,
        })
      }
    }
    if comments, cmErr := wb.GetComments(sheetName); cmErr == nil {
      for _, cm := range comments {
        text := cm.Text
        if text == "" {
          var parts []string
          for _, run := range cm.Paragraph {
            parts = append(parts, run.Text)
          }
          text = strings.Join(parts, "")
        }
        sheet.Comments = append(sheet.Comments, XlsxComment{
          Cell:   cm.Cell,
          Author: cm.Author,
          Text:   text,
        })
      }
    }

    if cells, picErr := wb.GetPictureCells(sheetName); picErr == nil {
      for _, cell := range cells {
        pictures, getErr := wb.GetPictures(sheetName, cell)
        if getErr != nil {
          warnings = append(warnings, fmt.Sprintf("pictures at %s!%s skipped: %v", sheetName, cell, getErr))
          continue
        }
        for _, pic := range pictures {
          if len(pic.File) == 0 {
            continue
          }
          out.Images = append(out.Images, EmbeddedImage{
            ID:          fmt.Sprintf("image%d", len(out.Images)+1),
            Sheet:       sheetName,
            Cell:        cell,
            ContentType: mime.TypeByExtension(strings.ToLower(pic.Extension)),
            data:        pic.File,
          })
        }
      }
    }

    out.Sheets = append(out.Sheets, sheet)
    out.Summary.CellCount += len(sheet.Cells)
    out.Summary.MergedCellCount += len(sheet.MergedCells)
    out.Summary.CommentCount += len(sheet.Comments)
  }

  out.Summary.SheetCount = len(out.Sheets)
  out.Summary.ImageCount = len(out.Images)
  if out.Summary.CellCount == 0 {
    warnings = append(warnings, "workbook contains no extractable cells")
  }
  return out, warnings, nil
}
