package api

type PredictRequest struct {
	Text *string `json:"text"`
}

type PredictResponse struct {
	ID            string    `json:"id"`
	Category      int       `json:"category"`
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
	ModelVersion  string    `json:"model_version"`
}

type BatchPredictRequest struct {
	Texts []string `json:"texts"`
}

type BatchPredictResponse struct {
	Results      []BatchResult `json:"results"`
	ModelVersion string        `json:"model_version"`
}

// BatchResult carries either Prediction or Error for the input at Index.
type BatchResult struct {
	Index      int              `json:"index"`
	Prediction *PredictResponse `json:"prediction,omitempty"`
	Error      *ItemError       `json:"error,omitempty"`
}

type ItemError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type CategoriesResponse struct {
	Categories   []string `json:"categories"`
	Total        int      `json:"total"`
	ModelVersion string   `json:"model_version"`
}

type FeedbackRequest struct {
	PredictionID string `json:"prediction_id"`
	Text         string `json:"text"`
	Predicted    string `json:"predicted"`
	Expected     string `json:"expected"`
}

type FeedbackResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	ModelVersion string `json:"model_version,omitempty"`
}
