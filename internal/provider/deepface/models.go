package deepface

// AnalyzeRequest for POST /analyze
type AnalyzeRequest struct {
	Img              string   `json:"img"`     // base64 encoded image
	Actions          []string `json:"actions"` // ["age", "gender", "emotion", "race"]
	Detector         string   `json:"detector_backend"`
	EnforceDetection bool     `json:"enforce_detection"`
}

// AnalyzeResponse from POST /analyze
type AnalyzeResponse struct {
	Results []AnalyzeResult `json:"results"`
}

type AnalyzeResult struct {
	Region          FacialArea         `json:"region"`
	FaceConfidence  float64            `json:"face_confidence"`
	Emotion         map[string]float64 `json:"emotion"`
	DominantEmotion string             `json:"dominant_emotion"`
}

// FacialArea is the face region in pixels. Eye positions are reported by
// recent DeepFace versions only, from the person's point of view.
type FacialArea struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	W        int    `json:"w"`
	H        int    `json:"h"`
	LeftEye  *Point `json:"left_eye,omitempty"`
	RightEye *Point `json:"right_eye,omitempty"`
}

// Point is an [x, y] pixel coordinate
type Point [2]int
