// Package core defines core types.
package core

// Labels represents key-value metadata attached to a captured packet.
type Labels map[string]string

// Label naming constants following {protocol}.{field} convention.
const (
	LabelSIPMethod     = "sip.method"
	LabelSIPCallID     = "sip.call_id"
	LabelSIPFromURI    = "sip.from_uri"
	LabelSIPToURI      = "sip.to_uri"
	LabelSIPStatusCode = "sip.status_code"
	LabelSIPCSeq       = "sip.cseq"

	// LabelCorrelationID overrides the correlation id written to chunk 0x11.
	LabelCorrelationID = "hep.correlation_id"
	// LabelTransactionType is written to chunk 0x24 when present.
	LabelTransactionType = "hep.transaction_type"
)
