package config

// DefaultYAML returns a commented configuration template for init-config.
func DefaultYAML() string {
	return `# stancewatch configuration
# Generated by: stancewatch init-config
#
# Evaluation order (cannot be changed):
#   1. Control triggers -> continue, crisis text prepended
#   2. Hard triggers -> stop, no acknowledgment path
#   3. Acknowledgment token -> override a soft veto
#   4. Soft triggers -> await acknowledgment
#   5. General risk (escalation table below) -> continue
#   6. Verification -> verified | degraded | blocked
#   7. Stance -> control > shield > lens > sword

# Acknowledgment handshake. The secret signs tokens and must be at least
# 32 bytes. Prefer the STANCEWATCH_ACK_SECRET environment variable.
ack:
  secret: ""
  ttl: 15m
  phrase: "I understand the risks and want to proceed"

# Resource text prepended to every response on a control decision.
# Empty uses the built-in text.
crisis_text: ""

# Optional file of extra control/hard/soft patterns. Built-in patterns keep
# precedence within each tier.
catalog: ""

# General-risk escalation table. Values are tuned; change with care.
escalation:
  sensitive_domains: [health, legal, finance, mental_health]
  domain:
    level: nudge
    stakes: medium
  action_at: medium
  action:
    level: friction
    stakes: high
  hint_levels:
    low: none
    medium: nudge
    high: friction
    critical: veto

# Live-data verification. Without providers, high-stakes claims are blocked
# and everything else is degraded.
verification:
  max_sources: 5
  timeout: 10s
  freshness:
    market: 15m
    crypto: 5m
    fx: 1h
    weather: 3h
    time: 1m
    general: 24h
  # providers:
  #   time: ["https://worldtimeapi.org/api/timezone/{path}"]
  #   crypto: ["https://api.example.com/price?q={query}"]

# Nonce store for single-use tokens: memory | redis | sqlite
nonce:
  backend: memory
  # redis_addr: 127.0.0.1:6379
  # sqlite_path: ~/.stancewatch/nonce.db

# Hash-chained audit log. Empty disables it.
audit_log: ""

# Webhook alerts for control, hard and ack_override events.
# alerts:
#   - url: https://hooks.slack.com/services/XXX
#     format: slack
#     events: [control, hard]

log:
  level: info
  format: json

# Regeneration retries after a leak guard rejection (at most 2).
generation:
  max_retries: 2

server:
  listen: 127.0.0.1:9440

# Per-user request cap on the gRPC service, counted in the nonce store.
# Zero disables it.
rate_limit:
  max_requests: 0
  window: 0s
`
}
