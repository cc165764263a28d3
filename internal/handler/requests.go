package handler

import (
	"time"

	"taskkash/internal/model"
	"taskkash/internal/service"
)

// Request bodies. Struct tags are the first line of validation; services
// enforce the business rules.

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type profileRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type markReadRequest struct {
	IDs []string `json:"ids" validate:"omitempty,dive,len=24,hexadecimal"`
}

type submitProofRequest struct {
	TaskID    int64    `json:"taskId" validate:"required,gt=0"`
	ProofURLs []string `json:"proofUrls" validate:"max=5,dive,http_url"`
	ProofLink string   `json:"proofLink" validate:"omitempty,http_url"`
	Notes     string   `json:"notes" validate:"max=1000"`
}

func (r submitProofRequest) input() service.SubmitInput {
	return service.SubmitInput{
		TaskID: r.TaskID,
		Proof:  model.Proof{URLs: r.ProofURLs, Link: r.ProofLink, Notes: r.Notes},
	}
}

// withdrawalRequest only bounds sizes. Type and per-type fields are
// normalized and checked by WithdrawalService.
type withdrawalRequest struct {
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	WithdrawalType string `json:"withdrawalType" validate:"required,max=16"`
	BankName       string `json:"bankName" validate:"max=100"`
	AccountName    string `json:"accountName" validate:"max=100"`
	AccountNumber  string `json:"accountNumber" validate:"max=34"`
	Network        string `json:"network" validate:"max=16"`
	WalletAddress  string `json:"walletAddress" validate:"max=128"`
}

func (r withdrawalRequest) input() service.WithdrawalInput {
	return service.WithdrawalInput{
		Amount:        r.Amount,
		Type:          r.WithdrawalType,
		BankName:      r.BankName,
		AccountName:   r.AccountName,
		AccountNumber: r.AccountNumber,
		Network:       r.Network,
		WalletAddress: r.WalletAddress,
	}
}

type taskRequest struct {
	Title          string     `json:"title" validate:"required,min=3,max=200"`
	Description    string     `json:"description" validate:"required,max=5000"`
	Category       string     `json:"category" validate:"required,oneof=social content commerce other"`
	RewardPoints   int64      `json:"rewardPoints" validate:"required,gt=0"`
	ValidationType string     `json:"validationType" validate:"required,oneof=manual screenshot link"`
	Instructions   string     `json:"instructions" validate:"max=5000"`
	Links          []string   `json:"links" validate:"max=10,dive,http_url"`
	Deadline       *time.Time `json:"deadline"`
}

func (r taskRequest) input() service.TaskInput {
	return service.TaskInput{
		Title:          r.Title,
		Description:    r.Description,
		Category:       r.Category,
		RewardPoints:   r.RewardPoints,
		ValidationType: r.ValidationType,
		Instructions:   r.Instructions,
		Links:          r.Links,
		Deadline:       r.Deadline,
	}
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type reviewSubmissionRequest struct {
	Status          string `json:"status" validate:"required,oneof=approved rejected"`
	RejectionReason string `json:"rejectionReason" validate:"required_if=Status rejected,max=500"`
}

type reviewWithdrawalRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

type adjustPointsRequest struct {
	Amount int64  `json:"amount" validate:"required,ne=0"`
	Reason string `json:"reason" validate:"required,max=500"`
}
