package wizard

import (
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/meshwiz/internal/mesh"
	"k8s.io/apimachinery/pkg/util/validation"
)

// Tab checks return whether the tab value is acceptable and, when it is not,
// one message per problem. They never fail.

// CheckWeights validates a traffic split.
func CheckWeights(ws []mesh.WorkloadWeight, http bool) (bool, []string) {
	var msgs []string
	if len(ws) == 0 {
		return false, []string{"at least one workload is required"}
	}
	var total int32
	mirrors := 0
	for _, w := range ws {
		if w.Weight < 0 || w.Weight > 100 {
			msgs = append(msgs, fmt.Sprintf("%s: weight %d must be between 0 and 100", w.Name, w.Weight))
		}
		// A mirrored workload's weight is its mirror percentage.
		if w.Mirrored {
			mirrors++
			if w.Weight < 1 {
				msgs = append(msgs, fmt.Sprintf("%s: mirror percentage must be at least 1", w.Name))
			}
			continue
		}
		total += w.Weight
	}
	if mirrors > 0 && !http {
		msgs = append(msgs, "TCP routes cannot mirror traffic")
	}
	if mirrors > 1 {
		msgs = append(msgs, "only one workload can be mirrored")
	}
	if total != 100 {
		msgs = append(msgs, fmt.Sprintf("weights must add up to 100, got %d", total))
	}
	return len(msgs) == 0, msgs
}

// CheckRules validates request routing rules.
func CheckRules(rules []mesh.Rule) (bool, []string) {
	if len(rules) == 0 {
		return false, []string{"at least one rule is required"}
	}
	var msgs []string
	seen := map[string]int{}
	for i, r := range rules {
		n := i + 1
		for _, m := range r.Matches {
			if _, err := mesh.ParseMatch(m); err != nil {
				msgs = append(msgs, fmt.Sprintf("rule %d: %v", n, err))
			}
		}
		key := strings.Join(r.Matches, "\n")
		if prev, ok := seen[key]; ok {
			msgs = append(msgs, fmt.Sprintf("rule %d: same matching criteria as rule %d", n, prev))
		} else {
			seen[key] = n
		}
		if len(r.Matches) == 0 && i != len(rules)-1 {
			msgs = append(msgs, fmt.Sprintf("rule %d matches all requests, rules after it are unreachable", n))
		}
		if ok, wm := CheckWeights(r.Routes, true); !ok {
			for _, m := range wm {
				msgs = append(msgs, fmt.Sprintf("rule %d: %s", n, m))
			}
		}
		if r.Delay != nil {
			msgs = append(msgs, prefix(n, checkDelay(*r.Delay))...)
		}
		if r.Abort != nil {
			msgs = append(msgs, prefix(n, checkAbort(*r.Abort))...)
		}
		if r.Timeout != "" {
			msgs = append(msgs, prefix(n, checkDuration("timeout", r.Timeout))...)
		}
		if r.Retries != nil {
			msgs = append(msgs, prefix(n, checkRetry(*r.Retries))...)
		}
	}
	return len(msgs) == 0, msgs
}

func prefix(rule int, msgs []string) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, fmt.Sprintf("rule %d: %s", rule, m))
	}
	return out
}

func checkDuration(field, s string) []string {
	d, err := time.ParseDuration(s)
	if err != nil {
		return []string{fmt.Sprintf("%s %q is not a duration", field, s)}
	}
	if d <= 0 {
		return []string{fmt.Sprintf("%s must be positive", field)}
	}
	return nil
}

func checkPercentage(field string, p float64) []string {
	if p < 0 || p > 100 {
		return []string{fmt.Sprintf("%s percentage %g must be between 0 and 100", field, p)}
	}
	return nil
}

func checkDelay(d mesh.Delay) []string {
	return append(checkPercentage("delay", d.Percentage), checkDuration("fixed delay", d.FixedDelay)...)
}

func checkAbort(a mesh.Abort) []string {
	msgs := checkPercentage("abort", a.Percentage)
	if a.HTTPStatus < 100 || a.HTTPStatus > 599 {
		msgs = append(msgs, fmt.Sprintf("abort status %d is not an HTTP status", a.HTTPStatus))
	}
	return msgs
}

func checkRetry(r mesh.Retry) []string {
	var msgs []string
	if r.Attempts <= 0 {
		msgs = append(msgs, "retry attempts must be positive")
	}
	return append(msgs, checkDuration("per try timeout", r.PerTryTimeout)...)
}

// CheckFaultInjection validates the fault injection tab.
func CheckFaultInjection(fi mesh.FaultInjectionRoute) (bool, []string) {
	var msgs []string
	if !fi.Delayed && !fi.Aborted {
		msgs = append(msgs, "enable a delay or an abort")
	}
	if fi.Delayed {
		msgs = append(msgs, checkDelay(fi.Delay)...)
	}
	if fi.Aborted {
		msgs = append(msgs, checkAbort(fi.Abort)...)
	}
	return len(msgs) == 0, msgs
}

// CheckTimeoutRetry validates the request timeouts tab.
func CheckTimeoutRetry(tr mesh.TimeoutRetryRoute) (bool, []string) {
	var msgs []string
	if !tr.IsTimeout && !tr.IsRetry {
		msgs = append(msgs, "enable a timeout or retries")
	}
	if tr.IsTimeout {
		msgs = append(msgs, checkDuration("timeout", tr.Timeout)...)
	}
	if tr.IsRetry {
		msgs = append(msgs, checkRetry(tr.Retries)...)
	}
	return len(msgs) == 0, msgs
}

// CheckHosts validates VirtualService hosts: "*", DNS subdomains or
// wildcard subdomains.
func CheckHosts(hosts []string) (bool, []string) {
	if len(hosts) == 0 {
		return false, []string{"at least one host is required"}
	}
	var msgs []string
	for _, h := range hosts {
		if h == "*" {
			continue
		}
		var errs []string
		if strings.HasPrefix(h, "*.") {
			errs = validation.IsWildcardDNS1123Subdomain(h)
		} else {
			errs = validation.IsDNS1123Subdomain(h)
		}
		for _, e := range errs {
			msgs = append(msgs, fmt.Sprintf("host %q: %s", h, e))
		}
	}
	return len(msgs) == 0, msgs
}

// CheckGateway validates the gateway tab against the hosts it would serve
// and the gateways available in the namespace.
func CheckGateway(gw mesh.Gateway, hosts []string, available []string) (bool, []string) {
	if !gw.AddGateway {
		return true, nil
	}
	var msgs []string
	if gw.NewGateway {
		for _, e := range validation.IsValidPortNum(int(gw.Port)) {
			msgs = append(msgs, fmt.Sprintf("port %d: %s", gw.Port, e))
		}
		if len(hosts) == 0 {
			msgs = append(msgs, "a new gateway needs at least one host")
		} else if ok, hostMsgs := CheckHosts(hosts); !ok {
			msgs = append(msgs, hostMsgs...)
		}
	} else {
		switch {
		case gw.SelectedGateway == "":
			msgs = append(msgs, "select a gateway")
		case len(available) > 0 && !contains(available, gw.SelectedGateway):
			msgs = append(msgs, fmt.Sprintf("gateway %q not found", gw.SelectedGateway))
		}
	}
	if gw.AddMesh && mesh.HasWildcard(hosts) {
		msgs = append(msgs, "host \"*\" cannot be used together with the mesh gateway")
	}
	return len(msgs) == 0, msgs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var (
	tlsModes  = []string{mesh.TLSUnset, mesh.TLSDisable, mesh.TLSSimple, mesh.TLSMutual, mesh.TLSIstioMutual}
	mtlsModes = []string{mesh.MTLSUnset, mesh.MTLSDisable, mesh.MTLSPermissive, mesh.MTLSStrict}
	simpleLBs = []string{mesh.LBRoundRobin, mesh.LBLeastRequest, mesh.LBLeastConn, mesh.LBRandom, mesh.LBPassthrough}
	hashTypes = []string{mesh.HashHTTPHeaderName, mesh.HashHTTPCookie, mesh.HashUseSourceIP}
)

// CheckTrafficPolicy validates TLS, load balancer and peer authentication.
func CheckTrafficPolicy(tp mesh.TrafficPolicy) (bool, []string) {
	var msgs []string
	if tp.TLSModified {
		if !contains(tlsModes, tp.TLS.Mode) {
			msgs = append(msgs, fmt.Sprintf("unknown TLS mode %q", tp.TLS.Mode))
		}
		if tp.TLS.Mode == mesh.TLSMutual && (tp.TLS.ClientCertificate == "" || tp.TLS.PrivateKey == "") {
			msgs = append(msgs, "MUTUAL TLS requires a client certificate and a private key")
		}
	}
	if tp.AddLoadBalancer {
		lb := tp.LoadBalancer
		if lb.Simple {
			if !contains(simpleLBs, lb.Policy) {
				msgs = append(msgs, fmt.Sprintf("unknown load balancer %q", lb.Policy))
			}
		} else {
			switch lb.HashType {
			case mesh.HashHTTPHeaderName:
				if lb.HTTPHeaderName == "" {
					msgs = append(msgs, "consistent hash needs a header name")
				}
				for _, e := range validation.IsHTTPHeaderName(lb.HTTPHeaderName) {
					msgs = append(msgs, fmt.Sprintf("header %q: %s", lb.HTTPHeaderName, e))
				}
			case mesh.HashHTTPCookie:
				if lb.CookieName == "" {
					msgs = append(msgs, "consistent hash needs a cookie name")
				}
				msgs = append(msgs, checkDuration("cookie ttl", lb.CookieTTL)...)
			case mesh.HashUseSourceIP:
			default:
				msgs = append(msgs, fmt.Sprintf("unknown consistent hash %q (want one of %s)", lb.HashType, strings.Join(hashTypes, ", ")))
			}
		}
	}
	if tp.PeerAuthn.Add && !contains(mtlsModes, tp.PeerAuthn.Mode) {
		msgs = append(msgs, fmt.Sprintf("unknown mTLS mode %q", tp.PeerAuthn.Mode))
	}
	return len(msgs) == 0, msgs
}

// CheckCircuitBreaker validates the connection pool and outlier detection
// independently.
func CheckCircuitBreaker(cb mesh.CircuitBreaker) (validCP, validOD bool, msgs []string) {
	validCP, validOD = true, true
	if cb.AddConnectionPool {
		if cb.ConnectionPool.MaxConnections <= 0 {
			msgs = append(msgs, "max connections must be positive")
			validCP = false
		}
		if cb.ConnectionPool.HTTP1MaxPendingRequests <= 0 {
			msgs = append(msgs, "max pending requests must be positive")
			validCP = false
		}
	}
	if cb.AddOutlierDetection {
		od := cb.OutlierDetection
		var odMsgs []string
		if od.Consecutive5xxErrors == 0 {
			odMsgs = append(odMsgs, "consecutive 5xx errors must be positive")
		}
		if od.Interval != "" {
			odMsgs = append(odMsgs, checkDuration("interval", od.Interval)...)
		}
		if od.BaseEjectionTime != "" {
			odMsgs = append(odMsgs, checkDuration("base ejection time", od.BaseEjectionTime)...)
		}
		if od.MaxEjectionPercent < 0 || od.MaxEjectionPercent > 100 {
			odMsgs = append(odMsgs, "max ejection percent must be between 0 and 100")
		}
		if len(odMsgs) > 0 {
			validOD = false
			msgs = append(msgs, odMsgs...)
		}
	}
	return validCP, validOD, msgs
}

// CheckMain runs the check of the tab that owns the main validity flag for
// the wizard type.
func CheckMain(s State) (bool, []string) {
	switch s.Inputs.Type {
	case TrafficShifting:
		return CheckWeights(s.Workloads, true)
	case TCPTrafficShifting:
		return CheckWeights(s.Workloads, false)
	case RequestRouting:
		return CheckRules(s.Rules)
	case FaultInjection:
		return CheckFaultInjection(s.FaultInjection)
	case RequestTimeouts:
		return CheckTimeoutRetry(s.TimeoutRetry)
	}
	return false, []string{fmt.Sprintf("unknown wizard type %q", s.Inputs.Type)}
}
