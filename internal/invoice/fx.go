package invoice

import (
	"github.com/smallbiznis/billingcore/internal/invoice/repository"
	"github.com/smallbiznis/billingcore/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.Provide),
)
