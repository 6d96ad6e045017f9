package llm

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docqa/internal/core"
)

const transcribeInstruction = `You are a precise document text extractor. Extract ALL text content from this PDF exactly as it appears, maintaining original formatting, line breaks, and structure. Do not summarize, interpret, or modify the content. Include headers, footers, captions, and all readable text elements.`

// GeminiRecognizer transcribes image-based PDFs through the Gemini File API.
// Every recognition uploads the document as a temporary remote file and
// deletes it afterwards, whether or not transcription succeeded.
type GeminiRecognizer struct {
	client    *genai.Client
	modelName string
	guard     *Guard
}

func NewGeminiRecognizer(ctx context.Context, apiKey, modelName string, guard *Guard) (*GeminiRecognizer, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash-lite"
	}
	return &GeminiRecognizer{client: cl, modelName: modelName, guard: guard}, nil
}

func (g *GeminiRecognizer) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiRecognizer) Recognize(ctx context.Context, data []byte) (string, error) {
	var text string
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = g.recognizeOnce(ctx, data)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (g *GeminiRecognizer) recognizeOnce(ctx context.Context, data []byte) (string, error) {
	file, err := g.client.UploadFile(ctx, "", bytes.NewReader(data), &genai.UploadFileOptions{
		MIMEType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("upload file to gemini: %w", err)
	}
	defer func() {
		// The request context may already be done; cleanup gets its own deadline.
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := g.client.DeleteFile(delCtx, file.Name); err != nil {
			log.Printf("GeminiRecognizer: failed to delete remote file %s: %v", file.Name, err)
		}
	}()

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0.1)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(transcribeInstruction)},
	}

	resp, err := model.GenerateContent(ctx,
		genai.FileData{URI: file.URI, MIMEType: "application/pdf"},
		genai.Text("Extract all text content from this PDF document. Maintain original formatting and structure."),
	)
	if err != nil {
		return "", fmt.Errorf("gemini transcription: %w", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}

var _ core.Recognizer = (*GeminiRecognizer)(nil)
