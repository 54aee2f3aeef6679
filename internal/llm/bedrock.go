package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// TitanEmbedder turns text into fixed-length normalized vectors via the
// Bedrock Titan text-embedding model.
type TitanEmbedder struct {
	client     *bedrockruntime.Client
	modelID    string
	dimensions int
}

// NewTitanEmbedder resolves AWS credentials from the default chain and
// constructs an embedder for the given model.
func NewTitanEmbedder(ctx context.Context, region, modelID string, dimensions int) (*TitanEmbedder, error) {
	if dimensions <= 0 {
		dimensions = 256
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &TitanEmbedder{
		client:     bedrockruntime.NewFromConfig(awsCfg),
		modelID:    modelID,
		dimensions: dimensions,
	}, nil
}

// Embed returns the normalized embedding vector for text.
func (e *TitanEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"inputText":  text,
		"dimensions": e.dimensions,
		"normalize":  true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("invoke embedding model: %w", err)
	}

	var payload struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(out.Body, &payload); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(payload.Embedding) == 0 {
		return nil, fmt.Errorf("embedding response has no vector")
	}
	return payload.Embedding, nil
}
