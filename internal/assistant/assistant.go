// Package assistant produces short design-advice replies, either from a local
// text-generation server or from a fixed set of fallback answers.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oro-os/backend/internal/model"
)

// ErrUnavailable is returned by a Generator that cannot serve requests.
var ErrUnavailable = errors.New("assistant unavailable")

const (
	// minReplyLength is the shortest generated reply that is kept.
	minReplyLength = 10

	// generateTimeout bounds a shared generation once it no longer follows
	// any single caller's context.
	generateTimeout = 2 * time.Minute
)

var fallbackReplies = []string{
	"That's a great design question! Consider using complementary colors and balanced composition.",
	"For better visual hierarchy, try varying font sizes and using whitespace effectively.",
	"I'd suggest exploring different layout options and testing with your target audience.",
	"Color psychology can really enhance your design - what mood are you trying to convey?",
	"Have you considered the golden ratio for proportions? It often creates pleasing layouts.",
	"Typography is crucial - make sure your font choices align with your brand personality.",
}

// Generator turns a full prompt into raw generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reply is the answer to one prompt.
type Reply struct {
	Text     string `json:"reply"`
	Fallback bool   `json:"fallback"`
}

// Assistant wraps a Generator with prompt shaping and fallback answers.
type Assistant struct {
	generator Generator
	logger    *slog.Logger
	group     singleflight.Group
}

// New creates an Assistant. A nil generator always answers with a fallback.
func New(generator Generator, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		generator: generator,
		logger:    logger.With("component", "assistant"),
	}
}

// Reply answers prompt. Generation failures are never returned; they are
// logged and answered with a fallback. Only an empty prompt is an error.
//
// Identical prompts in flight share one generation. The generation runs
// detached from every caller, so a caller that gives up gets a fallback
// without cutting short the reply of the others.
func (a *Assistant) Reply(ctx context.Context, prompt string) (Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Reply{}, model.ErrPromptRequired
	}

	if a.generator == nil {
		return fallback(prompt), nil
	}

	detached := context.WithoutCancel(ctx)
	ch := a.group.DoChan(prompt, func() (any, error) {
		genCtx, cancel := context.WithTimeout(detached, generateTimeout)
		defer cancel()
		return a.generator.Generate(genCtx, designPrompt(prompt))
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		a.logger.Debug("caller gave up waiting for generation", "error", ctx.Err())
		return fallback(prompt), nil
	case res = <-ch:
	}

	if res.Err != nil {
		if !errors.Is(res.Err, ErrUnavailable) {
			a.logger.Warn("generation failed", "error", res.Err)
		}
		return fallback(prompt), nil
	}

	text := cleanReply(prompt, res.Val.(string))
	if len(text) < minReplyLength {
		a.logger.Debug("generated reply too short", "length", len(text), "shared", res.Shared)
		return fallback(prompt), nil
	}

	return Reply{Text: text}, nil
}

func designPrompt(prompt string) string {
	return fmt.Sprintf("As an AI design assistant, help with: %s\n\nResponse:", prompt)
}

// cleanReply strips an echoed prompt and keeps the first line.
func cleanReply(prompt, generated string) string {
	text := strings.Replace(generated, designPrompt(prompt), "", 1)
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func fallback(prompt string) Reply {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return Reply{
		Text:     fallbackReplies[h.Sum32()%uint32(len(fallbackReplies))],
		Fallback: true,
	}
}
