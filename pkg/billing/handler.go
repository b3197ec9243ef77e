package billing

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the provider webhook endpoints. Stripe is the only
// provider wired; a second provider is another POST route backed by its
// own SignatureVerifier and a second Ingestor sharing the same Store.
func (ing *Ingestor) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stripe", ing.Handle)
	return r
}
