package peerreview

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

//go:embed abi/PeerReview.json
var peerReviewABIJSON []byte

// InputField is a named, string-valued input of a contract call form.
type InputField struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"description"`
	Rules       string `json:"rules,omitempty"`
}

// CallSpec describes one peer-review contract function: the inputs it takes,
// whether it only reads state, and how its string inputs map to ordered ABI
// arguments.
type CallSpec struct {
	Description  string       `json:"description"`
	FunctionName string       `json:"functionName"`
	Inputs       []InputField `json:"inputs"`
	ReadOnly     bool         `json:"readOnly"`

	Encode func(inputs []InputField) ([]any, error) `json:"-"`
}

const demoAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func submissionIDInput() []InputField {
	return []InputField{{Name: "submissionId", Value: "0", Description: "Submission ID", Rules: "required,uint_str"}}
}

// calls is the registry of every form the frontend exposes, in display order.
var calls = []CallSpec{
	{
		Description:  "add author",
		FunctionName: "addAuthor",
		Inputs:       []InputField{{Name: "author", Value: demoAddress, Description: "author", Rules: "required,eth_addr"}},
		Encode: func(in []InputField) ([]any, error) {
			return args(addressArg(in[0]))
		},
	},
	{
		Description:  "add reviewer",
		FunctionName: "addReviewer",
		Inputs: []InputField{
			{Name: "reviewer", Value: demoAddress, Description: "reviewer", Rules: "required,eth_addr"},
			{Name: "keywords", Value: "dao", Description: "keywords", Rules: "required"},
		},
		Encode: func(in []InputField) ([]any, error) {
			return args(addressArg(in[0]), keywordsArg(in[1]))
		},
	},
	{
		Description:  "Submit Data",
		FunctionName: "submitData",
		Inputs:       []InputField{{Name: "data", Value: defaultSubmission, Description: "Data to submit", Rules: "required"}},
		Encode: func(in []InputField) ([]any, error) {
			return args(stringArg(in[0]))
		},
	},
	{
		Description:  "Check if Submission is Approved",
		FunctionName: "getIsApproved",
		Inputs:       submissionIDInput(),
		ReadOnly:     true,
		Encode: func(in []InputField) ([]any, error) {
			return args(uintArg(in[0]))
		},
	},
	{
		Description:  "Add Keyword to Reviewer",
		FunctionName: "addKeywordToReviewer",
		Inputs: []InputField{
			{Name: "reviewerIndex", Value: "0", Description: "Reviewer Index", Rules: "required,uint_str"},
			{Name: "newKeyword", Value: "", Description: "New Keyword"},
		},
		Encode: func(in []InputField) ([]any, error) {
			return args(uintArg(in[0]), stringArg(in[1]))
		},
	},
	{
		Description:  "Reviewer Vote",
		FunctionName: "reviewerVote",
		Inputs: []InputField{
			{Name: "submissionId", Value: "0", Description: "Submission ID", Rules: "required,uint_str"},
			{Name: "vote", Value: "1", Description: "Vote (1 for accept, 0 for reject)", Rules: "required,oneof=0 1"},
		},
		// The contract takes the vote first.
		Encode: func(in []InputField) ([]any, error) {
			return args(uintArg(in[1]), uintArg(in[0]))
		},
	},
	submissionStep("Assign Random Seed", "assignRandomSeedToSubmission", false),
	submissionStep("Shuffle Reviewers", "shuffleReviewers", false),
	submissionStep("Find Top Reviewers", "findTopReviewersForSubmission", false),
	submissionStep("Reveal Votes", "revealVotes", false),
	{
		Description:  "Get Reviewers",
		FunctionName: "getReviewers",
		Inputs:       []InputField{},
		ReadOnly:     true,
		Encode: func([]InputField) ([]any, error) {
			return []any{}, nil
		},
	},
	{
		Description:  "Get Reviewer Keywords",
		FunctionName: "getReviewerKeywords",
		Inputs:       []InputField{{Name: "reviewerAddress", Value: demoAddress, Description: "Reviewer Address", Rules: "required,eth_addr"}},
		ReadOnly:     true,
		Encode: func(in []InputField) ([]any, error) {
			return args(addressArg(in[0]))
		},
	},
	submissionStep("Get Submission", "getSubmission", true),
	submissionStep("Get Shuffled Reviewers", "getShuffledReviewers", true),
	submissionStep("Get Selected Reviewers", "getSelectedReviewers", true),
}

const defaultSubmission = `{
  "task_definition": "Explain the concept of account abstraction in the context of blockchain technology.",
  "is_positive_example": true,
  "input": "What is account abstraction in blockchain?",
  "response": "Account abstraction in blockchain refers to the idea of making smart contract accounts and externally owned accounts (EOAs) indistinguishable. This allows smart contracts to initiate transactions, pay fees, and perform actions like EOAs, enhancing flexibility, security, and user experience.",
  "explanation": "The response concisely explains account abstraction, highlighting its key aspects and benefits. It mentions the distinction between smart contract accounts and EOAs, and how account abstraction removes this distinction. The response also notes the potential improvements in flexibility, security, and user experience."
}`

func submissionStep(description, functionName string, readOnly bool) CallSpec {
	return CallSpec{
		Description:  description,
		FunctionName: functionName,
		Inputs:       submissionIDInput(),
		ReadOnly:     readOnly,
		Encode: func(in []InputField) ([]any, error) {
			return args(uintArg(in[0]))
		},
	}
}

// Calls returns a copy of the registry in display order.
func Calls() []CallSpec {
	out := make([]CallSpec, len(calls))
	copy(out, calls)
	return out
}

// Lookup returns the registry entry for a contract function name.
func Lookup(functionName string) (CallSpec, error) {
	for _, c := range calls {
		if c.FunctionName == functionName {
			return c, nil
		}
	}
	return CallSpec{}, fmt.Errorf("%w: %q", ErrUnknownFunction, functionName)
}

// Bind overlays values on the default inputs of the call and validates the
// result. Inputs that are not supplied keep their default value.
func (c CallSpec) Bind(values map[string]string) ([]InputField, error) {
	known := make(map[string]bool, len(c.Inputs))
	bound := make([]InputField, len(c.Inputs))
	for i, in := range c.Inputs {
		known[in.Name] = true
		bound[i] = in
		if v, ok := values[in.Name]; ok {
			bound[i].Value = v
		}
	}

	for name := range values {
		if !known[name] {
			return nil, fmt.Errorf("%w: %s does not take input %q", ErrInvalidInput, c.FunctionName, name)
		}
	}

	v, err := validatorEngine()
	if err != nil {
		return nil, err
	}
	for _, in := range bound {
		if in.Rules == "" {
			continue
		}
		if err := v.Var(in.Value, in.Rules); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, in.Name, err)
		}
	}

	return bound, nil
}

// Pack binds values and ABI-encodes the call to the contract function.
func (c CallSpec) Pack(values map[string]string) ([]byte, error) {
	bound, err := c.Bind(values)
	if err != nil {
		return nil, err
	}

	arguments, err := c.Encode(bound)
	if err != nil {
		return nil, err
	}

	contract, err := ContractABI()
	if err != nil {
		return nil, err
	}

	data, err := contract.Pack(c.FunctionName, arguments...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", c.FunctionName, err)
	}
	return data, nil
}

// Unpack decodes the return data of a read call. A single output is returned
// as is; several outputs are returned keyed by their ABI names.
func (c CallSpec) Unpack(data []byte) (any, error) {
	contract, err := ContractABI()
	if err != nil {
		return nil, err
	}

	values, err := contract.Unpack(c.FunctionName, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", c.FunctionName, err)
	}

	outputs := contract.Methods[c.FunctionName].Outputs
	if len(values) == 1 {
		return values[0], nil
	}

	named := make(map[string]any, len(values))
	for i, v := range values {
		name := outputs[i].Name
		if name == "" {
			name = fmt.Sprintf("output%d", i)
		}
		named[name] = v
	}
	return named, nil
}

var (
	contractABIOnce sync.Once
	contractABI     abi.ABI
	contractABIErr  error
)

// ContractABI returns the parsed PeerReview contract ABI.
func ContractABI() (*abi.ABI, error) {
	contractABIOnce.Do(func() {
		contractABI, contractABIErr = abi.JSON(bytes.NewReader(peerReviewABIJSON))
	})
	if contractABIErr != nil {
		return nil, fmt.Errorf("failed to parse PeerReview ABI: %w", contractABIErr)
	}
	return &contractABI, nil
}

type argument struct {
	value any
	err   error
}

func args(in ...argument) ([]any, error) {
	out := make([]any, len(in))
	for i, a := range in {
		if a.err != nil {
			return nil, a.err
		}
		out[i] = a.value
	}
	return out, nil
}

func addressArg(in InputField) argument {
	if !common.IsHexAddress(in.Value) {
		return argument{err: fmt.Errorf("%w: %s: invalid address", ErrInvalidInput, in.Name)}
	}
	return argument{value: common.HexToAddress(in.Value)}
}

func uintArg(in InputField) argument {
	i, ok := new(big.Int).SetString(strings.TrimSpace(in.Value), 10)
	if !ok || i.Sign() < 0 {
		return argument{err: fmt.Errorf("%w: %s: invalid unsigned integer", ErrInvalidInput, in.Name)}
	}
	return argument{value: i}
}

func stringArg(in InputField) argument {
	return argument{value: in.Value}
}

// keywordsArg splits a comma separated list, trimming each keyword.
func keywordsArg(in InputField) argument {
	parts := strings.Split(in.Value, ",")
	keywords := make([]string, len(parts))
	for i, p := range parts {
		keywords[i] = strings.TrimSpace(p)
	}
	return argument{value: keywords}
}

// Custom validation for Ethereum address using go-playground validator.
func validEthAddress(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// validUintString checks that the field is a base-10 unsigned integer.
func validUintString(fl validator.FieldLevel) bool {
	i, ok := new(big.Int).SetString(strings.TrimSpace(fl.Field().String()), 10)
	return ok && i.Sign() >= 0
}

// validFunction checks that the field names a registered contract function.
func validFunction(fl validator.FieldLevel) bool {
	_, err := Lookup(fl.Field().String())
	return err == nil
}

var (
	validatorOnce sync.Once
	validatorErr  error
)

// NewValidator registers the custom validators on gin's binding engine.
// It is safe to call more than once.
func NewValidator() error {
	validatorOnce.Do(func() {
		validatorErr = registerValidators()
	})
	return validatorErr
}

// Initialization of custom validators.
func registerValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}

	if err := v.RegisterValidation("eth_addr", validEthAddress); err != nil {
		return fmt.Errorf("failed to register validator for eth_addr: %w", err)
	}

	if err := v.RegisterValidation("uint_str", validUintString); err != nil {
		return fmt.Errorf("failed to register validator for 'uint_str': %w", err)
	}

	if err := v.RegisterValidation("function", validFunction); err != nil {
		return fmt.Errorf("failed to register validator for 'function': %w", err)
	}

	return nil
}

func validatorEngine() (*validator.Validate, error) {
	if err := NewValidator(); err != nil {
		return nil, err
	}
	return binding.Validator.Engine().(*validator.Validate), nil
}
