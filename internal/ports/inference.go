package ports

import (
	"context"
	"encoding/json"
)

type Prediction struct {
	Recommendations json.RawMessage
	Raw             []byte
}

type InferenceClient interface {
	Predict(ctx context.Context, userID string) (Prediction, error)
}
