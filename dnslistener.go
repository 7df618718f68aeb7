package cdns

import (
	"context"
	"errors"
	"expvar"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Timeout applied to a single query's chain evaluation. Cancellation reaches
// any in-flight upstream exchange of a forwarder or recursor store.
const queryTimeout = 10 * time.Second

// DNSListener is a standard DNS listener for UDP or TCP.
type DNSListener struct {
	*dns.Server
	id string
}

var _ Listener = &DNSListener{}

type ListenOptions struct {
	// Network allowed to query this listener.
	AllowedNet []*net.IPNet
}

// NewDNSListener returns an instance of either a UDP or TCP DNS listener
// serving the given zones.
func NewDNSListener(id, addr, net string, opt ListenOptions, zones *ZoneSet) *DNSListener {
	return &DNSListener{
		id: id,
		Server: &dns.Server{
			Addr:    addr,
			Net:     net,
			Handler: listenHandler(id, net, addr, zones, opt.AllowedNet),
		},
	}
}

// Start the DNS listener.
func (s DNSListener) Start() error {
	Log.WithField("id", s.id).
		WithField("protocol", s.Net).
		WithField("addr", s.Addr).
		Info("starting listener")
	return s.ListenAndServe()
}

func (s DNSListener) String() string {
	return s.id
}

// DNS handler dispatching incoming queries into the zone chains. The chain
// outcome maps onto the response: an answer (possibly empty) is returned as
// NOERROR, an unhandled query becomes NXDOMAIN, a store failure SERVFAIL.
// Queries for names no zone covers are refused.
func listenHandler(id, protocol, addr string, zones *ZoneSet, allowedNet []*net.IPNet) dns.HandlerFunc {
	metrics := NewListenerMetrics("listener", id)
	return func(w dns.ResponseWriter, req *dns.Msg) {
		ci := ClientInfo{
			Listener: id,
		}
		switch addr := w.RemoteAddr().(type) {
		case *net.TCPAddr:
			ci.SourceIP = addr.IP
		case *net.UDPAddr:
			ci.SourceIP = addr.IP
		}

		if len(req.Question) < 1 {
			_ = w.WriteMsg(refused(req))
			return
		}
		question := req.Question[0]

		log := logger(id, question.Name, question.Qtype, ci)
		log.Debug("received query")
		metrics.query.Add(1)

		if !isAllowed(allowedNet, ci.SourceIP) {
			metrics.err.Add("acl", 1)
			log.Debug("refusing client ip")
			_ = w.WriteMsg(refused(req))
			return
		}

		chain, ok := zones.Match(question.Name)
		if !ok {
			metrics.err.Add("nozone", 1)
			log.Debug("no zone for query")
			_ = w.WriteMsg(refused(req))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()

		a := new(dns.Msg)
		rrs, err := chain.Lookup(ctx, question.Name, question.Qtype)
		switch {
		case err == nil:
			a.SetReply(req)
			a.RecursionAvailable = true
			a.Answer = rrs
		case errors.Is(err, ErrNotHandled):
			log.Debug("no store handled query")
			a = nxdomain(req)
		default:
			metrics.err.Add("lookup", 1)
			log.WithError(err).Error("failed to resolve")
			a = servfail(req)
		}

		// Check the response actually fits if the query was sent over UDP. If not, respond with TC flag.
		if protocol == "udp" {
			maxSize := dns.MinMsgSize
			if edns0 := req.IsEdns0(); edns0 != nil {
				maxSize = int(edns0.UDPSize())
			}
			a.Truncate(maxSize)
		}

		metrics.response.Add(rcodeString(a.Rcode), 1)
		_ = w.WriteMsg(a)
	}
}

type ListenerMetrics struct {
	// DNS queries received.
	query *expvar.Int
	// Responses by response code.
	response *expvar.Map
	// Errors by type.
	err *expvar.Map
}

func NewListenerMetrics(base, id string) *ListenerMetrics {
	return &ListenerMetrics{
		query:    getVarInt(base, id, "query"),
		response: getVarMap(base, id, "response"),
		err:      getVarMap(base, id, "error"),
	}
}

func isAllowed(allowedNet []*net.IPNet, ip net.IP) bool {
	if len(allowedNet) == 0 {
		return true
	}
	for _, net := range allowedNet {
		if net.Contains(ip) {
			return true
		}
	}
	return false
}
