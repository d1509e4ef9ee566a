package signin

import (
	"context"

	"github.com/nao1215/imagegate/pkg/identity"
)

// GoogleProviderID はGoogleサインインのプロバイダID。
const GoogleProviderID = "google.com"

// Backend はサインインを処理する外部の認証サービス。
// *identity.FirebaseClient がこれを満たす。
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, email, password string) (*identity.Session, error)
	SignInWithIDP(ctx context.Context, providerID, idToken string) (*identity.Session, error)
}

var _ Backend = (*identity.FirebaseClient)(nil)
