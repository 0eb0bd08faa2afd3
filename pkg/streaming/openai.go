package streaming

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/weft/pkg/conversation"
	"github.com/go-go-golems/weft/pkg/events"
)

// OpenAISession drives an OpenAI chat-completion stream. Each send runs in
// its own goroutine and publishes start/partial/final/error/interrupt
// events to the configured sinks while tracking the transport status.
type OpenAISession struct {
	client  *openai.Client
	model   string
	baseURL string
	sinks   []events.Sink

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
}

type OpenAIOption func(*OpenAISession)

func WithClient(client *openai.Client) OpenAIOption {
	return func(s *OpenAISession) {
		s.client = client
	}
}

// WithModel overrides the default model. An empty value keeps the default.
func WithModel(model string) OpenAIOption {
	return func(s *OpenAISession) {
		if model != "" {
			s.model = model
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint. An
// empty value keeps the default API host.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(s *OpenAISession) {
		s.baseURL = baseURL
	}
}

func WithSinks(sinks ...events.Sink) OpenAIOption {
	return func(s *OpenAISession) {
		s.sinks = append(s.sinks, sinks...)
	}
}

func NewOpenAISession(apiKey string, options ...OpenAIOption) *OpenAISession {
	ret := &OpenAISession{
		model:  openai.GPT4o,
		status: StatusIdle,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.client == nil {
		config := openai.DefaultConfig(apiKey)
		if ret.baseURL != "" {
			config.BaseURL = ret.baseURL
		}
		ret.client = openai.NewClientWithConfig(config)
	}
	return ret
}

// AddSink registers another event destination. Lets the controller be
// wired up after the session is constructed.
func (s *OpenAISession) AddSink(sink events.Sink) {
	s.sinks = append(s.sinks, sink)
}

func (s *OpenAISession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *OpenAISession) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Stop cancels the in-flight stream. It does not touch anything queued
// behind it; queued sends drain once the stopped state settles.
func (s *OpenAISession) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	} else {
		log.Debug().Msg("Stop called with no stream in flight")
	}
}

func (s *OpenAISession) Send(ctx context.Context, messages conversation.Conversation, options SendOptions) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}

	s.mu.Lock()
	if s.status.Generating() {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	model := s.model
	if options.Model != "" {
		model = options.Model
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.status = StatusSubmitted
	s.cancel = cancel
	s.mu.Unlock()

	metadata := events.EventMetadata{
		MessageID: uuid.NewString(),
		SessionID: options.Metadata.SessionID,
		Model:     model,
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: makeCompletionMessages(messages),
		Stream:   true,
	}

	go s.run(streamCtx, req, metadata)

	return nil
}

func (s *OpenAISession) run(ctx context.Context, req openai.ChatCompletionRequest, metadata events.EventMetadata) {
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	s.publishEvent(events.NewStartEvent(metadata))

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("OpenAI streaming request failed")
		s.setStatus(StatusError)
		s.publishEvent(events.NewErrorEvent(metadata, err))
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close stream")
		}
	}()

	completion := ""
	chunkCount := 0

	log.Debug().Str("model", req.Model).Msg("OpenAI starting streaming loop")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("chunks_received", chunkCount).Msg("OpenAI streaming cancelled by context")
			s.setStatus(StatusReady)
			s.publishEvent(events.NewInterruptEvent(metadata, completion))
			return

		default:
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				log.Debug().Int("chunks_received", chunkCount).Msg("OpenAI stream completed")
				s.setStatus(StatusReady)
				s.publishEvent(events.NewFinalEvent(metadata, completion))
				return
			}
			if err != nil {
				log.Error().Err(err).Int("chunks_received", chunkCount).Msg("OpenAI stream receive failed")
				s.setStatus(StatusError)
				s.publishEvent(events.NewErrorEvent(metadata, err))
				return
			}
			chunkCount++

			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			completion += delta
			s.setStatus(StatusStreaming)
			s.publishEvent(events.NewPartialEvent(metadata, delta, completion))
		}
	}
}

func (s *OpenAISession) publishEvent(event events.Event) {
	for _, sink := range s.sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("failed to publish event")
		}
	}
}

func makeCompletionMessages(messages conversation.Conversation) []openai.ChatCompletionMessage {
	ret := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		m := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Text,
		}

		images := make([]openai.ChatMessagePart, 0)
		for _, att := range msg.Attachments {
			if !att.IsImage() {
				log.Debug().Str("name", att.Name).Str("media_type", att.MediaType).Msg("skipping non-image attachment")
				continue
			}
			images = append(images, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    att.DataURL(),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
		if len(images) > 0 {
			m.MultiContent = append([]openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: msg.Text},
			}, images...)
			m.Content = ""
		}

		ret = append(ret, m)
	}
	return ret
}

var _ Session = (*OpenAISession)(nil)
