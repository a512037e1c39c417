package utility

import (
	"github.com/utilibot/utilibot/internal/utility/service"
	"go.uber.org/fx"
)

var Module = fx.Module("utility.service",
	fx.Provide(service.NewService),
)
