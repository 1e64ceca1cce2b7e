package service

import (
	"bytes"
	"context"
	"fmt"
	"image/color"

	"skillpath_backend/internal/util"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// CertificateDocument 交给渲染器的结构化数据
type CertificateDocument struct {
	RecipientName    string
	TrackTitle       string
	VerificationHash string
	CompletionDate   string
}

// CertificateRenderer 渲染并存储证书，返回可访问的地址
type CertificateRenderer interface {
	Render(ctx context.Context, doc CertificateDocument) (string, error)
}

const (
	certWidth  = 1600
	certHeight = 1130
)

// PNGRenderer 使用 gg 绘制 PNG 证书后上传到存储
type PNGRenderer struct {
	Storage    *StorageService
	IssuerName string

	regular *truetype.Font
	bold    *truetype.Font
}

func NewPNGRenderer(storage *StorageService, issuerName string) (*PNGRenderer, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &PNGRenderer{
		Storage:    storage,
		IssuerName: issuerName,
		regular:    regular,
		bold:       bold,
	}, nil
}

func (r *PNGRenderer) face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// Draw 只负责绘制，不做上传
func (r *PNGRenderer) Draw(doc CertificateDocument) (*bytes.Buffer, error) {
	dc := gg.NewContext(certWidth, certHeight)

	dc.SetColor(color.NRGBA{R: 0xFB, G: 0xF8, B: 0xF1, A: 0xFF})
	dc.Clear()

	// 边框
	dc.SetColor(color.NRGBA{R: 0x1F, G: 0x3A, B: 0x5F, A: 0xFF})
	dc.SetLineWidth(12)
	dc.DrawRectangle(40, 40, certWidth-80, certHeight-80)
	dc.Stroke()
	dc.SetLineWidth(2)
	dc.DrawRectangle(64, 64, certWidth-128, certHeight-128)
	dc.Stroke()

	cx := float64(certWidth) / 2

	dc.SetFontFace(r.face(r.bold, 64))
	dc.DrawStringAnchored("Certificate of Completion", cx, 230, 0.5, 0.5)

	dc.SetFontFace(r.face(r.regular, 32))
	dc.DrawStringAnchored("This certifies that", cx, 340, 0.5, 0.5)

	dc.SetFontFace(r.face(r.bold, 72))
	dc.DrawStringAnchored(doc.RecipientName, cx, 450, 0.5, 0.5)

	dc.SetFontFace(r.face(r.regular, 32))
	dc.DrawStringAnchored("has successfully completed the track", cx, 560, 0.5, 0.5)

	dc.SetFontFace(r.face(r.bold, 52))
	dc.DrawStringWrapped(doc.TrackTitle, cx, 660, 0.5, 0.5, certWidth-300, 1.3, gg.AlignCenter)

	dc.SetFontFace(r.face(r.regular, 28))
	dc.DrawStringAnchored("Completed on "+doc.CompletionDate, cx, 800, 0.5, 0.5)
	if r.IssuerName != "" {
		dc.DrawStringAnchored("Issued by "+r.IssuerName, cx, 850, 0.5, 0.5)
	}

	dc.SetFontFace(r.face(r.regular, 20))
	dc.SetColor(color.NRGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xFF})
	dc.DrawStringAnchored("Verification: "+doc.VerificationHash, cx, certHeight-120, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return &buf, nil
}

// Render 对象名由验证码决定，重复渲染覆盖同一个文件
func (r *PNGRenderer) Render(ctx context.Context, doc CertificateDocument) (string, error) {
	buf, err := r.Draw(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %w", util.ErrRenderingUnavailable, err)
	}
	key := fmt.Sprintf("credentials/%s.png", doc.VerificationHash)
	url, err := r.Storage.Upload(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), util.MimePNG)
	if err != nil {
		return "", fmt.Errorf("%w: upload: %w", util.ErrRenderingUnavailable, err)
	}
	return url, nil
}
