// Package welcome renders the greeting card posted when a member joins.
package welcome

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Card describes one welcome image.
type Card struct {
	Width       int
	Height      int
	Background  string
	Username    string
	GuildName   string
	MemberCount int
	// Avatar is optional; it is scaled into a square on the left.
	Avatar image.Image
}

var (
	textColor   = color.RGBA{R: 0xF2, G: 0xF3, B: 0xF5, A: 0xFF}
	mutedColor  = color.RGBA{R: 0xB5, G: 0xBA, B: 0xC1, A: 0xFF}
	accentColor = color.RGBA{R: 0x58, G: 0x65, B: 0xF2, A: 0xFF}
)

// Render draws the card and returns it PNG encoded.
func Render(card Card) ([]byte, error) {
	if card.Width <= 0 || card.Height <= 0 {
		return nil, fmt.Errorf("invalid card size %dx%d", card.Width, card.Height)
	}
	bg, err := ParseColor(card.Background)
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, card.Width, card.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	stripe := image.Rect(0, card.Height-6, card.Width, card.Height)
	draw.Draw(canvas, stripe, image.NewUniform(accentColor), image.Point{}, draw.Src)

	textX := card.Height / 5
	if card.Avatar != nil {
		side := card.Height * 3 / 5
		top := (card.Height - side) / 2
		dst := image.Rect(textX, top, textX+side, top+side)
		draw.CatmullRom.Scale(canvas, dst, card.Avatar, card.Avatar.Bounds(), draw.Over, nil)
		textX = dst.Max.X + card.Height/8
	}

	lineHeight := basicfont.Face7x13.Metrics().Height.Ceil()
	baseline := card.Height/2 - lineHeight
	drawText(canvas, textX, baseline, textColor, "Welcome, "+card.Username+"!")
	if card.GuildName != "" {
		drawText(canvas, textX, baseline+lineHeight*2, mutedColor, "to "+card.GuildName)
	}
	if card.MemberCount > 0 {
		drawText(canvas, textX, baseline+lineHeight*4, mutedColor, fmt.Sprintf("You are member #%d", card.MemberCount))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawText(dst draw.Image, x, y int, c color.Color, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// ParseColor reads a #RRGGBB color. An empty string gives Discord's dark
// background.
func ParseColor(value string) (color.RGBA, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "#")
	if value == "" {
		return color.RGBA{R: 0x1E, G: 0x1F, B: 0x22, A: 0xFF}, nil
	}
	if len(value) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", value)
	}
	n, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", value, err)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xFF}, nil
}
