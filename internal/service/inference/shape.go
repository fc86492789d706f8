package inference

import (
	"fmt"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
)

// messageContent extracts choices[0].message.content. A missing choice,
// message or content is reported as chat.ErrShape; an empty string is a
// valid answer. Presence comes from the decoder's field metadata, so an
// absent or null content is told apart from "".
func messageContent(c *openai.ChatCompletion) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: empty response", chat.ErrShape)
	}
	if len(c.Choices) == 0 {
		if msg := gjson.Get(c.RawJSON(), "error.message"); msg.Exists() {
			return "", fmt.Errorf("%w: service reported %q", chat.ErrShape, msg.String())
		}
		return "", fmt.Errorf("%w: no choices", chat.ErrShape)
	}

	choice := c.Choices[0]
	if !choice.JSON.Message.Valid() {
		return "", fmt.Errorf("%w: choice has no message", chat.ErrShape)
	}
	if !choice.Message.JSON.Content.Valid() {
		return "", fmt.Errorf("%w: message has no content", chat.ErrShape)
	}
	return choice.Message.Content, nil
}

// deltaContent extracts choices[0].delta.content, treating any missing
// field as an empty fragment.
func deltaContent(chunk openai.ChatCompletionChunk) string {
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}

// chunkFinished reports whether the first choice carries a finish reason.
func chunkFinished(chunk openai.ChatCompletionChunk) bool {
	return len(chunk.Choices) > 0 && chunk.Choices[0].FinishReason != ""
}
