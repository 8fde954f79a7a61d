package app

import (
	"github.com/vk/foldrun/internal/engine"
	"github.com/vk/foldrun/internal/strategy"
	"github.com/vk/foldrun/modules/baseline"
	"github.com/vk/foldrun/modules/holdout"
	"github.com/vk/foldrun/modules/kfold"
	"github.com/vk/foldrun/modules/report"
	"github.com/vk/foldrun/modules/standardize"
	"github.com/vk/foldrun/modules/subsample"
)

// coreModules is the definitive list of all engine modules that are compiled
// into the foldrun binary.
var coreModules = []engine.Module{
	&strategy.Module{},
	&holdout.Module{},
	&subsample.Module{},
	&kfold.Module{},
	&standardize.Module{},
	&baseline.Module{},
	&report.Module{},
}
