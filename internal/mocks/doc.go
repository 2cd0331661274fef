// Package mocks provides centralized mock implementations for testing.
//
// This package contains mock implementations of interfaces used throughout the
// application, facilitating consistent testing across the codebase. Instead of
// defining inline mocks in individual test files, these standardized mock
// implementations can be reused.
//
// Usage:
//
//	import "github.com/dokusho-app/dokusho-api/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    gen := mocks.NewScriptedGenerator("passage text", "[passage|reading] text")
//	    gen.GenerateQuizFn = func(ctx context.Context, req generation.QuizRequest) ([]generation.QuizQuestion, error) {
//	        return nil, generation.ErrContentBlocked
//	    }
//
//	    // Use the mock in your test...
//	}
package mocks
