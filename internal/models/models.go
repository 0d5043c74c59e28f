package models

// Record store collections
const (
	CollectionProducts  = "produtos"
	CollectionSuppliers = "fornecedores"
	CollectionProposals = "propostas"
	CollectionAlerts    = "alertas"
)

// ProposalStatus is the lifecycle state of a proposal.
type ProposalStatus string

// Proposal statuses
const (
	ProposalStatusPending          ProposalStatus = "pendente"
	ProposalStatusApproved         ProposalStatus = "aprovada"
	ProposalStatusRejected         ProposalStatus = "rejeitada"
	ProposalStatusExpired          ProposalStatus = "expirada"
	ProposalStatusRenewalRequested ProposalStatus = "renovacao_solicitada"
)

// Valid reports whether s is one of the known proposal statuses.
func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalStatusPending, ProposalStatusApproved, ProposalStatusRejected,
		ProposalStatusExpired, ProposalStatusRenewalRequested:
		return true
	}
	return false
}

// Alert types. Manual alerts may carry any other value.
const (
	AlertTypeExpiringSoon     = "vencimento_proximo"
	AlertTypeExpired          = "vencido"
	AlertTypeRenewalRequested = "renovacao_solicitada"
	AlertTypeInfo             = "info"
)

// Product represents an item that suppliers quote for
type Product struct {
	ID             string `json:"id"`
	Nome           string `json:"nome"`
	Descricao      string `json:"descricao,omitempty"`
	Categoria      string `json:"categoria,omitempty"`
	Unidade        string `json:"unidade,omitempty"`
	Especificacoes string `json:"especificacoes,omitempty"`
	Ativo          bool   `json:"ativo"`
}

// Supplier represents a company that issues proposals
type Supplier struct {
	ID                 string `json:"id"`
	RazaoSocial        string `json:"razao_social"`
	NomeFantasia       string `json:"nome_fantasia,omitempty"`
	CNPJ               string `json:"cnpj"`
	Email              string `json:"email,omitempty"`
	Telefone           string `json:"telefone,omitempty"`
	Endereco           string `json:"endereco,omitempty"`
	ContatoResponsavel string `json:"contato_responsavel,omitempty"`
	Observacoes        string `json:"observacoes,omitempty"`
	Ativo              bool   `json:"ativo"`
}

// Proposal is a supplier quote for a product, valid until DataValidade
type Proposal struct {
	ID             string         `json:"id"`
	NumeroProposta string         `json:"numero_proposta"`
	ProdutoID      string         `json:"produto_id"`
	FornecedorID   string         `json:"fornecedor_id"`
	Quantidade     float64        `json:"quantidade"`
	PrecoUnitario  float64        `json:"preco_unitario"`
	PrecoTotal     float64        `json:"preco_total"`
	PrazoEntrega   *int           `json:"prazo_entrega,omitempty"`
	DataCriacao    Timestamp      `json:"data_criacao"`
	DataValidade   Timestamp      `json:"data_validade"`
	Status         ProposalStatus `json:"status"`
	Observacoes    string         `json:"observacoes,omitempty"`
	Anexos         []string       `json:"anexos,omitempty"`
}

// Alert is a notification shown in the inbox
type Alert struct {
	ID         string    `json:"id"`
	PropostaID *string   `json:"proposta_id"`
	TipoAlerta string    `json:"tipo_alerta"`
	Mensagem   string    `json:"mensagem"`
	DataAlerta Timestamp `json:"data_alerta"`
	Lido       bool      `json:"lido"`
	Ativo      bool      `json:"ativo"`
}

// ProposalRef returns the originating proposal id, or "" for manual alerts.
func (a Alert) ProposalRef() string {
	if a.PropostaID == nil {
		return ""
	}
	return *a.PropostaID
}

// Unread reports whether the alert counts towards the badge.
func (a Alert) Unread() bool {
	return a.Ativo && !a.Lido
}

// AlertDraft is an alert computed by the engines and not yet persisted
type AlertDraft struct {
	PropostaID *string
	TipoAlerta string
	Mensagem   string
}

// ProposalRef returns the originating proposal id, or "" for manual alerts.
func (d AlertDraft) ProposalRef() string {
	if d.PropostaID == nil {
		return ""
	}
	return *d.PropostaID
}

// ToAlert materialises the draft with the given id and creation time.
func (d AlertDraft) ToAlert(id string, createdAt Timestamp) Alert {
	return Alert{
		ID:         id,
		PropostaID: d.PropostaID,
		TipoAlerta: d.TipoAlerta,
		Mensagem:   d.Mensagem,
		DataAlerta: createdAt,
		Lido:       false,
		Ativo:      true,
	}
}

// StatusUpdate is a status transition computed by the lifecycle engine
type StatusUpdate struct {
	ProposalID     string
	NumeroProposta string
	Status         ProposalStatus
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
