package identity

// Status はトークン検証結果の種類。
type Status int

const (
	// StatusNoCredential はトークンが提示されなかったことを表す。
	StatusNoCredential Status = iota
	// StatusAuthenticated はトークンが検証されたことを表す。
	StatusAuthenticated
	// StatusInvalid はトークンが無効または期限切れであることを表す。
	StatusInvalid
	// StatusServiceUnavailable は認証サービスに到達できなかったことを表す。
	StatusServiceUnavailable
)

// String はStatusの名前を返す。
func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusInvalid:
		return "invalid"
	case StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "no_credential"
	}
}

// Outcome はトークン検証の結果。
// 4種類のうち必ずどれか1つだけを表し、Identityを持つのはAuthenticatedの場合に限る。
type Outcome struct {
	status   Status
	identity Identity
	reason   string
}

// Authenticated は検証済みユーザーを持つOutcomeを返す。
func Authenticated(id Identity) Outcome {
	return Outcome{status: StatusAuthenticated, identity: id}
}

// NoCredential はトークンが無いことを表すOutcomeを返す。
func NoCredential() Outcome {
	return Outcome{status: StatusNoCredential, reason: "no credential"}
}

// Invalid は無効なトークンを表すOutcomeを返す。
func Invalid(reason string) Outcome {
	return Outcome{status: StatusInvalid, reason: reason}
}

// ServiceUnavailable は認証サービス障害を表すOutcomeを返す。
func ServiceUnavailable(reason string) Outcome {
	return Outcome{status: StatusServiceUnavailable, reason: reason}
}

// Status は結果の種類を返す。
func (o Outcome) Status() Status {
	return o.status
}

// Identity は検証済みユーザーを返す。Authenticated以外ではfalseを返す。
func (o Outcome) Identity() (Identity, bool) {
	if o.status != StatusAuthenticated {
		return Identity{}, false
	}
	return o.identity, true
}

// Reason は認証できなかった理由を返す。Authenticatedの場合は空文字列。
func (o Outcome) Reason() string {
	return o.reason
}
