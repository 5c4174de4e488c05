package commissions

import (
	"net/http"

	"github.com/angelmondragon/brokerledger/api/middleware"
	"github.com/angelmondragon/brokerledger/api/responses"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return auth.Actor{}, false
	}
	return actor, true
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable"))
}
