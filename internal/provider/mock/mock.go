package mock

import (
	"context"
	"sync"

	"github.com/saturnino-fabrica-de-software/liveness/internal/domain"
	"github.com/saturnino-fabrica-de-software/liveness/internal/provider"
)

// minImageSize rejects payloads that cannot possibly hold an image
const minImageSize = 100

// Response is one scripted DetectFaces answer
type Response struct {
	Faces []provider.DetectedFace
	Err   error
}

// Provider implementa provider.FaceProvider para testes e desenvolvimento.
// Respostas enfileiradas com Enqueue são consumidas em ordem; com a fila
// vazia ele devolve uma única face frontal de olhos abertos.
type Provider struct {
	mu     sync.Mutex
	script []Response
	calls  int
}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

// Name implements provider.FaceProvider
func (p *Provider) Name() string {
	return "mock"
}

// Enqueue agenda respostas para as próximas chamadas de DetectFaces
func (p *Provider) Enqueue(responses ...Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, responses...)
}

// EnqueueFaces agenda um frame com as faces informadas
func (p *Provider) EnqueueFaces(faces ...provider.DetectedFace) {
	p.Enqueue(Response{Faces: faces})
}

// Calls returns how many times DetectFaces was invoked
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// DetectFaces simula detecção de faces
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(image) < minImageSize {
		return nil, domain.ErrInvalidImage
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if len(p.script) > 0 {
		next := p.script[0]
		p.script = p.script[1:]
		return next.Faces, next.Err
	}

	return []provider.DetectedFace{Face(0, nil, nil)}, nil
}

// Face builds a detected face with the given yaw and optional probabilities
func Face(yaw float64, smile, leftEyeOpen *float64) provider.DetectedFace {
	return provider.DetectedFace{
		BoundingBox: provider.BoundingBox{
			X:      0.1,
			Y:      0.1,
			Width:  0.8,
			Height: 0.8,
		},
		Confidence:             0.99,
		QualityScore:           0.95,
		Pose:                   &provider.Pose{Yaw: yaw},
		SmileProbability:       smile,
		LeftEyeOpenProbability: leftEyeOpen,
	}
}

var _ provider.FaceProvider = (*Provider)(nil)
