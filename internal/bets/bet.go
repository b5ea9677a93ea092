package bets

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrNotFound      = errors.New("bet not found")
	ErrInvalidBet    = errors.New("invalid bet")
	ErrInviteUsed    = errors.New("invite already used")
	ErrTerminalState = errors.New("payment already decided")
	ErrDuplicateBet  = errors.New("bet id already exists")
	ErrCorruptBet    = errors.New("corrupt bet document")
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected:
		return true
	}
	return false
}

// Terminal: approved e rejected não voltam para pending nem trocam entre si
func (s PaymentStatus) Terminal() bool {
	return s == PaymentApproved || s == PaymentRejected
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Bet é uma seleção de números submetida contra um convite
type Bet struct {
	ID              string        `json:"id"`
	Numbers         []int         `json:"numbers"`
	Shares          int           `json:"shares"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       *time.Time    `json:"updatedAt,omitempty"`
	Status          Status        `json:"status"`
	CampaignID      string        `json:"campaignId"`
	InviteID        string        `json:"inviteId"`
	ParticipantName string        `json:"participantName"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
}

// NormalizeNumbers confere quantidade, faixa [lo,hi] e duplicidade.
// Devolve uma cópia ordenada.
func NormalizeNumbers(numbers []int, want, lo, hi int) ([]int, error) {
	if len(numbers) != want {
		return nil, fmt.Errorf("%w: expected %d numbers, got %d", ErrInvalidBet, want, len(numbers))
	}
	seen := make(map[int]struct{}, len(numbers))
	out := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if n < lo || n > hi {
			return nil, fmt.Errorf("%w: number %d out of range %d-%d", ErrInvalidBet, n, lo, hi)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: number %d repeated", ErrInvalidBet, n)
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// sortByCreation ordena por createdAt asc, id como desempate
func sortByCreation(list []Bet) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
