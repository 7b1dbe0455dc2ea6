package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/journal-coach/internal/model"
	"github.com/capitalize-ai/journal-coach/pkg/metrics"
)

const (
	// StreamName is the name of the transcripts stream.
	StreamName = "TRANSCRIPTS"

	// SubjectPrefix is the prefix for all transcript subjects.
	SubjectPrefix = "transcript"

	// pendingChat stands in for the chat id until the service reports one.
	pendingChat = "pending"
)

// TranscriptEntry is one captured message.
type TranscriptEntry struct {
	OwnerID string                    `json:"owner_id"`
	ChatID  string                    `json:"chat_id"`
	Message model.ConversationMessage `json:"message"`
}

// TranscriptStore publishes and replays conversation transcripts.
type TranscriptStore struct {
	client *Client
}

// NewTranscriptStore creates a new transcript store.
func NewTranscriptStore(client *Client) *TranscriptStore {
	return &TranscriptStore{client: client}
}

// EnsureStream ensures the transcripts stream exists with proper configuration.
func (s *TranscriptStore) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Voice conversation transcripts",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the subject for a message.
func MessageSubject(ownerID, chatID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, token(ownerID), token(chatOrPending(chatID)), token(string(role)))
}

// ChatFilter returns the filter subject for all messages in a chat.
func ChatFilter(ownerID, chatID string) string {
	return fmt.Sprintf("%s.%s.%s.msg.>", SubjectPrefix, token(ownerID), token(chatOrPending(chatID)))
}

// Record publishes msg to the owner's transcript.
func (s *TranscriptStore) Record(ctx context.Context, ownerID, chatID string, msg model.ConversationMessage) error {
	data, err := json.Marshal(TranscriptEntry{OwnerID: ownerID, ChatID: chatID, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = s.client.JetStream().Publish(ctx, MessageSubject(ownerID, chatID, msg.Role), data)
	if err != nil {
		metrics.TranscriptPublishes.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish message: %w", err)
	}
	metrics.TranscriptPublishes.WithLabelValues("success").Inc()
	return nil
}

// GetMessages retrieves messages from a chat starting after a sequence.
func (s *TranscriptStore) GetMessages(ctx context.Context, ownerID, chatID string, afterSequence uint64, limit int) ([]model.ConversationMessage, uint64, bool, error) {
	if limit <= 0 {
		limit = 100
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     ChatFilter(ownerID, chatID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: time.Minute,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := s.client.JetStream().CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var messages []model.ConversationMessage
	var lastSequence uint64
	for msg := range batch.Messages() {
		var entry TranscriptEntry
		if err := json.Unmarshal(msg.Data(), &entry); err != nil {
			continue
		}

		if meta, err := msg.Metadata(); err == nil {
			entry.Message.Sequence = meta.Sequence.Stream
			lastSequence = meta.Sequence.Stream
		}
		messages = append(messages, entry.Message)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return messages, lastSequence, len(messages) == limit, nil
}

func chatOrPending(chatID string) string {
	if chatID == "" {
		return pendingChat
	}
	return chatID
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
