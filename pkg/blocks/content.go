package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/petrijr/botflow/pkg/api"
)

type messageBlock struct {
	text string
}

func newMessageBlock(n api.Node) (api.Block, error) {
	return messageBlock{text: n.Data.Label}, nil
}

func (b messageBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	if b.text == "" {
		return api.FollowEdge(), nil
	}
	return api.FollowEdge(), x.SendText(ctx, b.text)
}

type endBlock struct {
	text string
}

func newEndBlock(n api.Node) (api.Block, error) {
	text := n.Data.Label
	if text == "" {
		text = DefaultFarewell
	}
	return endBlock{text: text}, nil
}

// Execute says goodbye and ends the conversation regardless of outgoing edges.
func (b endBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	x.Session.ClearPending()
	return api.Wait(), x.SendText(ctx, b.text)
}

type imageBlock struct {
	urls    []string
	caption string
}

func newImageBlock(n api.Node) (api.Block, error) {
	var urls []string
	if n.Data.URL != "" {
		urls = append(urls, n.Data.URL)
	}
	for _, u := range n.Data.Images {
		if u != "" && u != n.Data.URL {
			urls = append(urls, u)
		}
	}
	return imageBlock{urls: urls, caption: n.Data.Caption}, nil
}

// Execute sends each image. A photo the platform refuses degrades to a text
// link.
func (b imageBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	for _, u := range b.urls {
		_, err := x.Send(ctx, api.OutboundMessage{PhotoURL: u, Caption: b.caption})
		if err == nil {
			continue
		}
		x.Logger.WarnContext(ctx, "image_send_failed", slog.String("url", u), slog.Any("error", err))
		if err := x.SendText(ctx, "Image: "+u); err != nil {
			return api.FollowEdge(), err
		}
	}
	return api.FollowEdge(), nil
}

type delayBlock struct {
	hours, minutes, seconds int
	sleep                   func(context.Context, time.Duration) error
}

func newDelayBlock(n api.Node, sleep func(context.Context, time.Duration) error) (api.Block, error) {
	d := n.Data
	if d.Hours < 0 || d.Minutes < 0 || d.Seconds < 0 {
		return nil, &api.ConfigurationError{NodeID: n.ID, Reason: "delay must not be negative"}
	}
	return delayBlock{hours: d.Hours, minutes: d.Minutes, seconds: d.Seconds, sleep: sleep}, nil
}

func (b delayBlock) total() time.Duration {
	return time.Duration(b.hours)*time.Hour + time.Duration(b.minutes)*time.Minute + time.Duration(b.seconds)*time.Second
}

// Execute announces the pause and sleeps. The sleep is interrupted when the
// worker stops.
func (b delayBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	total := b.total()
	if total <= 0 {
		return api.FollowEdge(), nil
	}
	msg := fmt.Sprintf("Waiting %d h %d min %d sec...", b.hours, b.minutes, b.seconds)
	if err := x.SendText(ctx, msg); err != nil {
		x.Logger.WarnContext(ctx, "delay_notice_failed", slog.Any("error", err))
	}
	if err := b.sleep(ctx, total); err != nil {
		return api.Wait(), nil
	}
	return api.FollowEdge(), nil
}

type productBlock struct {
	photoURL string
	text     string
}

func newProductBlock(n api.Node) (api.Block, error) {
	return productBlock{photoURL: n.Data.PhotoURL, text: formatProduct(n.Data)}, nil
}

func formatProduct(d api.NodeData) string {
	var parts []string
	if d.Title != "" {
		parts = append(parts, "*"+d.Title+"*")
	}
	if d.Description != "" {
		parts = append(parts, d.Description)
	}
	if d.Price != "" {
		parts = append(parts, "*Price:* "+d.Price)
	}
	var features []string
	for _, f := range d.Features {
		if f.Key != "" && f.Value != "" {
			features = append(features, "• "+f.Key+": "+f.Value)
		}
	}
	if len(features) > 0 {
		parts = append(parts, "*Features:*\n"+strings.Join(features, "\n"))
	}
	if len(parts) == 0 {
		return "Product card"
	}
	return strings.Join(parts, "\n\n")
}

func (b productBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	if b.photoURL == "" {
		_, err := x.Send(ctx, api.OutboundMessage{Text: b.text, ParseMode: "Markdown"})
		return api.FollowEdge(), err
	}
	_, err := x.Send(ctx, api.OutboundMessage{PhotoURL: b.photoURL, Caption: b.text, ParseMode: "Markdown"})
	if err == nil {
		return api.FollowEdge(), nil
	}
	x.Logger.WarnContext(ctx, "product_photo_failed", slog.Any("error", err))
	_, err = x.Send(ctx, api.OutboundMessage{
		Text:      "Image: " + b.photoURL + "\n\n" + b.text,
		ParseMode: "Markdown",
	})
	return api.FollowEdge(), err
}

type fileBlock struct {
	files   []api.FileRef
	caption string
}

func newFileBlock(n api.Node) (api.Block, error) {
	var files []api.FileRef
	for _, f := range n.Data.Files {
		if p := strings.TrimSpace(f.Path); p != "" {
			files = append(files, api.FileRef{Path: p, Name: strings.TrimSpace(f.Name)})
		}
	}
	return fileBlock{files: files, caption: n.Data.Caption}, nil
}

var mediaByExt = map[string]api.MediaKind{
	".jpg": api.MediaPhoto, ".jpeg": api.MediaPhoto, ".png": api.MediaPhoto,
	".gif": api.MediaPhoto, ".bmp": api.MediaPhoto, ".webp": api.MediaPhoto,
	".mp4": api.MediaVideo, ".avi": api.MediaVideo, ".mkv": api.MediaVideo,
	".mov": api.MediaVideo, ".webm": api.MediaVideo,
	".mp3": api.MediaAudio, ".wav": api.MediaAudio, ".ogg": api.MediaAudio,
	".m4a": api.MediaAudio, ".flac": api.MediaAudio,
}

// MediaKindFor picks the upload method for a local file by extension.
func MediaKindFor(path string) api.MediaKind {
	if k, ok := mediaByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return k
	}
	return api.MediaDocument
}

// Execute uploads each file. Missing or failing files are reported to the
// chat and skipped.
func (b fileBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	if len(b.files) == 0 {
		if b.caption != "" {
			return api.FollowEdge(), x.SendText(ctx, b.caption)
		}
		return api.FollowEdge(), nil
	}
	for _, f := range b.files {
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Path)
		}
		if _, err := os.Stat(f.Path); err != nil {
			x.Logger.ErrorContext(ctx, "file_not_found", slog.String("path", f.Path))
			_ = x.SendText(ctx, "File not found: "+name)
			continue
		}
		caption := b.caption
		if len(b.files) > 1 {
			caption = strings.TrimSpace(b.caption + "\n" + name)
		}
		_, err := x.Send(ctx, api.OutboundMessage{
			DocumentPath: f.Path,
			MediaKind:    MediaKindFor(f.Path),
			Caption:      caption,
		})
		if err != nil {
			x.Logger.ErrorContext(ctx, "file_send_failed", slog.String("path", f.Path), slog.Any("error", err))
			_ = x.SendText(ctx, "Could not send file: "+name)
		}
	}
	return api.FollowEdge(), nil
}
