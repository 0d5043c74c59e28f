package models

import "time"

// Event types
const (
	EventTypeProposalChanged = "PROPOSAL_CHANGED"
	EventTypeProposalExpired = "PROPOSAL_EXPIRED"
	EventTypeAlertCreated    = "ALERT_CREATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ProposalChangedEvent published when a user creates or edits a proposal
type ProposalChangedEvent struct {
	BaseEvent
	ProposalID     string         `json:"proposal_id"`
	NumeroProposta string         `json:"numero_proposta"`
	Status         ProposalStatus `json:"status"`
	Action         string         `json:"action"`
}

// ProposalExpiredEvent published when the lifecycle engine expires a proposal
type ProposalExpiredEvent struct {
	BaseEvent
	ProposalID     string    `json:"proposal_id"`
	NumeroProposta string    `json:"numero_proposta"`
	DataValidade   Timestamp `json:"data_validade"`
}

// AlertCreatedEvent published for every persisted alert
type AlertCreatedEvent struct {
	BaseEvent
	AlertID    string  `json:"alert_id"`
	PropostaID *string `json:"proposta_id"`
	TipoAlerta string  `json:"tipo_alerta"`
	Mensagem   string  `json:"mensagem"`
}

// Proposal change actions
const (
	ProposalActionCreated          = "created"
	ProposalActionUpdated          = "updated"
	ProposalActionStatusChanged    = "status_changed"
	ProposalActionRenewalRequested = "renewal_requested"
)
