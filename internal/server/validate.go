package server

import (
	"fmt"

	"github.com/n0rvyn/cross-mind-consensus/internal/consensus"
	"github.com/n0rvyn/cross-mind-consensus/internal/modelconfig"
)

const (
	minQuestionLen = 1
	maxQuestionLen = 5000
	minMaxModels   = 2
	maxMaxModels   = 10
	maxTemperature = 2.0
	minChainDepth  = 0
	maxChainDepth  = 5
)

var validMethods = map[string]consensus.Method{
	"expert_roles":     consensus.MethodExpertRoles,
	"direct_consensus": consensus.MethodDirectConsensus,
	"debate":           consensus.MethodDebate,
	"chain":            consensus.MethodChain,
}

var validReasoningMethods = map[string]bool{
	"chain_of_thought":  true,
	"socratic_method":   true,
	"multi_perspective": true,
}

// validationError reports a single invalid_request cause; the handler turns
// it into the §6 error envelope.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

// toEngineRequest validates body against §6's request-body contract and the
// configured model set, returning a normalised consensus.Request ready for
// Engine.Run.
func toEngineRequest(body ConsensusRequestBody, models *modelconfig.Set) (consensus.Request, error) {
	if len(body.Question) < minQuestionLen || len(body.Question) > maxQuestionLen {
		return consensus.Request{}, &validationError{msg: fmt.Sprintf("question must be between %d and %d characters", minQuestionLen, maxQuestionLen)}
	}

	method := consensus.MethodExpertRoles
	if body.Method != "" {
		m, ok := validMethods[body.Method]
		if !ok {
			return consensus.Request{}, &validationError{msg: fmt.Sprintf("unknown method %q", body.Method)}
		}
		method = m
	}

	maxModels := 5
	if body.MaxModels != 0 {
		if body.MaxModels < minMaxModels || body.MaxModels > maxMaxModels {
			return consensus.Request{}, &validationError{msg: fmt.Sprintf("max_models must be between %d and %d", minMaxModels, maxMaxModels)}
		}
		maxModels = body.MaxModels
	}

	selected := body.Models
	if len(selected) == 0 {
		selected = models.DefaultModels()
	}
	if len(selected) > maxModels {
		selected = selected[:maxModels]
	}
	for _, id := range selected {
		if _, ok := models.Descriptor(id); !ok {
			return consensus.Request{}, &validationError{msg: fmt.Sprintf("unknown model id %q", id)}
		}
	}
	if len(selected) < minMaxModels {
		return consensus.Request{}, &validationError{msg: "at least two models are required"}
	}

	temperature := 0.7
	if body.Temperature != nil {
		if *body.Temperature < 0 || *body.Temperature > maxTemperature {
			return consensus.Request{}, &validationError{msg: fmt.Sprintf("temperature must be between 0 and %.0f", maxTemperature)}
		}
		temperature = *body.Temperature
	}

	weights := body.Weights
	if len(weights) > 0 {
		if len(weights) != len(selected) {
			return consensus.Request{}, &validationError{msg: "weights length must equal the number of models"}
		}
		for _, w := range weights {
			if w <= 0 {
				return consensus.Request{}, &validationError{msg: "weights must be positive"}
			}
		}
	}

	enableCaching := true
	if body.EnableCaching != nil {
		enableCaching = *body.EnableCaching
	}

	reasoningMethod := "chain_of_thought"
	if body.ReasoningMethod != "" {
		if !validReasoningMethods[body.ReasoningMethod] {
			return consensus.Request{}, &validationError{msg: fmt.Sprintf("unknown reasoning_method %q", body.ReasoningMethod)}
		}
		reasoningMethod = body.ReasoningMethod
	}

	chainDepth := 2
	if body.ChainDepth != nil {
		if *body.ChainDepth < minChainDepth || *body.ChainDepth > maxChainDepth {
			return consensus.Request{}, &validationError{msg: fmt.Sprintf("chain_depth must be between %d and %d", minChainDepth, maxChainDepth)}
		}
		chainDepth = *body.ChainDepth
	}

	return consensus.Request{
		Question:             body.Question,
		Roles:                body.Roles,
		SelectedModelIDs:     selected,
		Method:               method,
		Temperature:          temperature,
		Weights:              weights,
		ChainDepth:           chainDepth,
		EnableChainOfThought: body.EnableChainOfThought,
		EnableCaching:        enableCaching,
		MaxModels:            maxModels,
		ReasoningMethod:      reasoningMethod,
	}, nil
}
