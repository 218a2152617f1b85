// Package mock provides a test double for [backend.API].
//
// Set the exported *Result / *Err fields before use; inspect the recorded
// calls afterwards. Hooks (e.g. ProcessAudioFunc) take precedence over the
// static fields and let tests block or sequence responses.
//
//	api := &mock.API{
//	    ProcessAudioResult: &backend.TurnResult{StressLevelNew: 6, TurnNumber: 1},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/consultorio/pkg/backend"
)

// ProcessAudioCall records the arguments of a single ProcessAudio invocation.
type ProcessAudioCall struct {
	WAV     []byte
	Request backend.TurnRequest
}

// SynthesizeCall records the arguments of a single SynthesizeText invocation.
type SynthesizeCall struct {
	Text        string
	StressLevel int
}

// API is a mock implementation of [backend.API]. It is safe for concurrent use.
type API struct {
	mu sync.Mutex

	// Healthy is returned by HealthCheck.
	Healthy bool

	StartSessionResult *backend.SessionStart
	StartSessionErr    error
	// StartSessionFunc, when set, replaces StartSessionResult/Err.
	StartSessionFunc func(ctx context.Context) (*backend.SessionStart, error)

	ProcessAudioResult *backend.TurnResult
	ProcessAudioErr    error
	// ProcessAudioFunc, when set, replaces ProcessAudioResult/Err.
	ProcessAudioFunc func(ctx context.Context, wav []byte, req backend.TurnRequest) (*backend.TurnResult, error)

	SynthesizeResult *backend.Synthesis
	SynthesizeErr    error

	DownloadResult *backend.AudioAsset
	DownloadErr    error
	// DownloadFunc, when set, replaces DownloadResult/Err.
	DownloadFunc func(ctx context.Context, url string) (*backend.AudioAsset, error)

	// Recorded calls.
	CallCountHealthCheck  int
	CallCountStartSession int
	ProcessAudioCalls     []ProcessAudioCall
	SynthesizeCalls       []SynthesizeCall
	DownloadCalls         []string
}

var _ backend.API = (*API)(nil)

// HealthCheck implements [backend.API].
func (a *API) HealthCheck(_ context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CallCountHealthCheck++
	return a.Healthy
}

// StartSession implements [backend.API].
func (a *API) StartSession(ctx context.Context) (*backend.SessionStart, error) {
	a.mu.Lock()
	a.CallCountStartSession++
	fn, res, err := a.StartSessionFunc, a.StartSessionResult, a.StartSessionErr
	a.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return res, err
}

// StartSessionCallCount returns how many sessions were requested.
func (a *API) StartSessionCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.CallCountStartSession
}

// ProcessAudio implements [backend.API].
func (a *API) ProcessAudio(ctx context.Context, wav []byte, req backend.TurnRequest) (*backend.TurnResult, error) {
	a.mu.Lock()
	a.ProcessAudioCalls = append(a.ProcessAudioCalls, ProcessAudioCall{WAV: wav, Request: req})
	fn, res, err := a.ProcessAudioFunc, a.ProcessAudioResult, a.ProcessAudioErr
	a.mu.Unlock()

	if fn != nil {
		return fn(ctx, wav, req)
	}
	return res, err
}

// SynthesizeText implements [backend.API].
func (a *API) SynthesizeText(_ context.Context, text string, stressLevel int) (*backend.Synthesis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SynthesizeCalls = append(a.SynthesizeCalls, SynthesizeCall{Text: text, StressLevel: stressLevel})
	return a.SynthesizeResult, a.SynthesizeErr
}

// DownloadAudio implements [backend.API].
func (a *API) DownloadAudio(ctx context.Context, url string) (*backend.AudioAsset, error) {
	a.mu.Lock()
	a.DownloadCalls = append(a.DownloadCalls, url)
	fn, res, err := a.DownloadFunc, a.DownloadResult, a.DownloadErr
	a.mu.Unlock()

	if fn != nil {
		return fn(ctx, url)
	}
	return res, err
}

// ProcessAudioCallCount returns how many uploads were made.
func (a *API) ProcessAudioCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ProcessAudioCalls)
}

// DownloadCallCount returns how many downloads were made.
func (a *API) DownloadCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.DownloadCalls)
}
