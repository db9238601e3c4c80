// Package sipmeta recognises SIP payloads and extracts the headers used to
// label HEP3 packets (Call-ID, From, To, CSeq, method, status).
package sipmeta

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"

	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"
	"github.com/sirupsen/logrus"

	"firestige.xyz/hepagent/internal/core"
	"firestige.xyz/hepagent/internal/metrics"
)

// PayloadType is the payload type name assigned to SIP packets.
const PayloadType = "sip"

var sipMethods = [][]byte{
	[]byte("INVITE"),
	[]byte("ACK"),
	[]byte("BYE"),
	[]byte("CANCEL"),
	[]byte("REGISTER"),
	[]byte("OPTIONS"),
	[]byte("PRACK"),
	[]byte("SUBSCRIBE"),
	[]byte("NOTIFY"),
	[]byte("PUBLISH"),
	[]byte("INFO"),
	[]byte("REFER"),
	[]byte("MESSAGE"),
	[]byte("UPDATE"),
}

var sipVersion = []byte("SIP/2.0")

// transactionTypes maps the CSeq method to the chunk 0x24 value.
var transactionTypes = map[sip.RequestMethod]string{
	sip.INVITE:   "call",
	sip.ACK:      "call",
	sip.BYE:      "call",
	sip.CANCEL:   "call",
	sip.PRACK:    "call",
	sip.UPDATE:   "call",
	sip.INFO:     "call",
	sip.REGISTER: "registration",
}

// Annotator labels captured packets that carry SIP.
type Annotator struct {
	mu     sync.Mutex
	parser *parser.PacketParser
	log    *logrus.Entry
}

// New creates an Annotator logging parse failures to entry.
func New(entry *logrus.Entry) *Annotator {
	return &Annotator{
		parser: parser.NewPacketParser(newLoggerAdapter(entry)),
		log:    entry,
	}
}

// Detect reports whether data starts like a SIP request or response.
func Detect(data []byte) bool {
	if bytes.HasPrefix(data, sipVersion) {
		return len(data) > len(sipVersion) && data[len(sipVersion)] == ' '
	}
	for _, method := range sipMethods {
		if bytes.HasPrefix(data, method) && len(data) > len(method) && data[len(method)] == ' ' {
			return true
		}
	}
	return false
}

// CanHandle checks the standard SIP ports first, then the payload prefix.
func CanHandle(pkt *core.CapturedPacket) bool {
	if len(pkt.Payload) == 0 {
		return false
	}
	if pkt.Transport.SrcPort == 5060 || pkt.Transport.DstPort == 5060 ||
		pkt.Transport.SrcPort == 5061 || pkt.Transport.DstPort == 5061 {
		return true
	}
	return Detect(pkt.Payload)
}

// Annotate parses the payload of pkt and, when it is SIP, sets the payload
// type and the sip.* labels. Non-SIP packets are left unchanged and
// Annotate returns false.
func (a *Annotator) Annotate(pkt *core.CapturedPacket) (bool, error) {
	if !CanHandle(pkt) {
		return false, nil
	}

	msg, err := a.parse(pkt.Payload)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("sip").Inc()
		if a.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			a.log.WithError(err).Debugf("failed to parse SIP message: %q", pkt.Payload)
		}
		return false, fmt.Errorf("sip parse failed: %w", err)
	}

	if pkt.Labels == nil {
		pkt.Labels = make(core.Labels)
	}
	for k, v := range Labels(msg) {
		pkt.Labels[k] = v
	}
	pkt.PayloadType = PayloadType
	return true, nil
}

func (a *Annotator) parse(data []byte) (sip.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.parser.ParseMessage(data)
}

// Labels extracts the sip.* labels from a parsed message.
func Labels(msg sip.Message) core.Labels {
	labels := make(core.Labels)

	switch m := msg.(type) {
	case sip.Request:
		labels[core.LabelSIPMethod] = string(m.Method())
	case sip.Response:
		labels[core.LabelSIPStatusCode] = strconv.Itoa(int(m.StatusCode()))
	}

	if id, ok := msg.CallID(); ok && id != nil {
		labels[core.LabelSIPCallID] = id.Value()
	}
	if from, ok := msg.From(); ok && from != nil && from.Address != nil {
		labels[core.LabelSIPFromURI] = from.Address.String()
	}
	if to, ok := msg.To(); ok && to != nil && to.Address != nil {
		labels[core.LabelSIPToURI] = to.Address.String()
	}
	if cseq, ok := msg.CSeq(); ok && cseq != nil {
		labels[core.LabelSIPCSeq] = cseq.Value()
		if tt, ok := transactionTypes[cseq.MethodName]; ok {
			labels[core.LabelTransactionType] = tt
		} else {
			labels[core.LabelTransactionType] = "default"
		}
	}
	return labels
}
