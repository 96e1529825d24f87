package jsop

import (
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// removedGlobals are host-environment names scripts must not reach
var removedGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

// frozenBuiltins are frozen together with their prototypes outside permissive mode
var frozenBuiltins = []string{
	"Object",
	"Array",
	"Function",
	"String",
	"Number",
	"Boolean",
	"Date",
	"RegExp",
	"Error",
	"Math",
	"JSON",
}

// applySandbox restricts vm according to cfg and installs a console that
// writes to logger
func applySandbox(vm *goja.Runtime, cfg *Config, logger *zap.Logger) error {
	vm.SetMaxCallStackSize(cfg.MaxStackDepth)

	for _, name := range removedGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	if cfg.SecurityLevel == SecurityLevelStrict {
		restricted := func(goja.FunctionCall) goja.Value {
			panic(vm.NewGoError(newSecurityError("eval is not allowed in strict security mode")))
		}
		if err := vm.Set("eval", restricted); err != nil {
			return fmt.Errorf("failed to restrict eval: %w", err)
		}
	}

	if cfg.SecurityLevel != SecurityLevelStrict {
		if err := installConsole(vm, logger.With(zap.String("script", cfg.Name))); err != nil {
			return err
		}
	}

	if cfg.SecurityLevel != SecurityLevelPermissive {
		if err := freezeBuiltins(vm); err != nil {
			return err
		}
	}
	return nil
}

func freezeBuiltins(vm *goja.Runtime) error {
	val, err := vm.RunString(`(function (obj) {
		if (obj === null || obj === undefined) { return; }
		Object.freeze(obj);
		if (obj.prototype) { Object.freeze(obj.prototype); }
	})`)
	if err != nil {
		return fmt.Errorf("failed to create freeze function: %w", err)
	}
	freeze, ok := goja.AssertFunction(val)
	if !ok {
		return fmt.Errorf("freeze function is not a function")
	}

	for _, name := range frozenBuiltins {
		if _, err := freeze(goja.Undefined(), vm.Get(name)); err != nil {
			return fmt.Errorf("failed to freeze %s: %w", name, err)
		}
	}
	return nil
}

// installConsole maps console.log/info/warn/error/debug onto zap levels
func installConsole(vm *goja.Runtime, logger *zap.Logger) error {
	console := vm.NewObject()

	bind := func(name string, log func(string, ...zap.Field)) error {
		return console.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			log(fmt.Sprint(args...))
			return goja.Undefined()
		})
	}

	for name, log := range map[string]func(string, ...zap.Field){
		"log":   logger.Info,
		"info":  logger.Info,
		"debug": logger.Debug,
		"warn":  logger.Warn,
		"error": logger.Error,
	} {
		if err := bind(name, log); err != nil {
			return fmt.Errorf("failed to install console.%s: %w", name, err)
		}
	}
	return vm.Set("console", console)
}
