package services

import (
  "fmt"
  "image"
  "os"
  "path/filepath"
  "time"

  "github.com/fogleman/gg"
  "golang.org/x/image/draw"
  "golang.org/x/image/font/basicfont"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/types"
  "github.com/auditlens/auditlens-backend/internal/utils"
)

const annotatedMaxWidth = 1200

// Annotator stamps a verdict badge onto image evidence and saves the result
// under executionevidence/ so reviewers see the outcome on the screenshot
// itself.
type Annotator interface {
  // RenderVerdictBadge returns the artifact path relative to the uploads
  // root, e.g. executionevidence/ITGC-01-1714406400000.png.
  RenderVerdictBadge(artifactURL, controlID string, verdict *types.Verdict) (string, error)
}

type annotator struct {
  log         *logger.Logger
  uploadsRoot string
  now         func() time.Time
}

func NewAnnotator(baseLog *logger.Logger) Annotator {
  log := baseLog.With("service", "Annotator")
  return &annotator{
    log:         log,
    uploadsRoot: utils.GetEnv("UPLOADS_DIR", "uploads", log),
    now:         time.Now,
  }
}

func (a *annotator) RenderVerdictBadge(artifactURL, controlID string, verdict *types.Verdict) (string, error) {
  src, err := gg.LoadImage(filepath.Join(a.uploadsRoot, filepath.Clean(artifactURL)))
  if err != nil {
    return "", fmt.Errorf("load evidence image: %w", err)
  }

  src = scaleDown(src, annotatedMaxWidth)
  dc := gg.NewContextForImage(src)
  dc.SetFontFace(basicfont.Face7x13)

  label := "FAIL"
  if verdict.FinalResult {
    label = "PASS"
  }
  detail := fmt.Sprintf("%d/%d attributes passed", verdict.TotalAttributesPassed, verdict.TotalAttributes)

  badgeW := 220.0
  badgeH := 52.0
  dc.SetRGBA(0, 0, 0, 0.65)
  dc.DrawRoundedRectangle(8, 8, badgeW, badgeH, 6)
  dc.Fill()

  if verdict.FinalResult {
    dc.SetRGB(0.2, 0.85, 0.3)
  } else {
    dc.SetRGB(0.95, 0.25, 0.2)
  }
  dc.DrawString(label, 20, 28)
  dc.SetRGB(1, 1, 1)
  dc.DrawString(detail, 20, 48)

  rel := filepath.Join("executionevidence", fmt.Sprintf("%s-%d.png", controlID, a.now().UnixMilli()))
  dst := filepath.Join(a.uploadsRoot, rel)
  if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
    return "", err
  }
  if err := dc.SavePNG(dst); err != nil {
    return "", fmt.Errorf("save annotated image: %w", err)
  }
  return filepath.ToSlash(rel), nil
}

func scaleDown(src image.Image, maxWidth int) image.Image {
  b := src.Bounds()
  if b.Dx() <= maxWidth {
    return src
  }
  h := b.Dy() * maxWidth / b.Dx()
  dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
  draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
  return dst
}
