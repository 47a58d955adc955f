package modgraph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/GoCodeAlone/modgraph/config"
	"github.com/GoCodeAlone/modgraph/internal/testutil"
	"github.com/GoCodeAlone/modgraph/linker"
)

var (
	errUnexpectedOrder = errors.New("unexpected hook order")
	errUnexpectedState = errors.New("unexpected node state")
	errExpectedFailure = errors.New("expected build to fail")
	errModuleVisible   = errors.New("module should not be visible")
)

type namedModule struct {
	Name string
}

type lifecycleBDDContext struct {
	rec        *testutil.Recorder
	autoInvoke bool
	required   string
	app        *Application
	startErr   error
	stopErrs   []error
}

func (c *lifecycleBDDContext) reset() {
	c.rec = &testutil.Recorder{}
	c.autoInvoke = false
	c.required = ""
	c.app = nil
	c.startErr = nil
	c.stopErrs = nil
}

func (c *lifecycleBDDContext) aModuleWithLayerOwningSubmodule(module, layer, sub string) error {
	// The tree shape is fixed by descriptor.
	if module != "root" || layer != "main" || sub != "a" {
		return fmt.Errorf("unsupported tree %s/%s/%s", module, layer, sub)
	}
	return nil
}

func (c *lifecycleBDDContext) theLayerAutoInvokes() error {
	c.autoInvoke = true
	return nil
}

func (c *lifecycleBDDContext) theModuleRequiresKey(key string) error {
	c.required = key
	return nil
}

func (c *lifecycleBDDContext) descriptor() *Descriptor {
	layer := NewLayer[Stateless]("main").
		OnStart(testutil.Hook[Stateless](c.rec, "start main", nil)).
		OnShutdown(testutil.Hook[Stateless](c.rec, "shutdown main", nil)).
		Children(
			NewSubModule[Stateless]("a").
				OnStart(testutil.Hook[Stateless](c.rec, "start a", nil)).
				OnShutdown(testutil.Hook[Stateless](c.rec, "shutdown a", nil)).
				Descriptor(),
		)
	if c.autoInvoke {
		layer.AutoInvoke()
	}
	root := NewModule[namedModule]("root").
		OnStart(testutil.Hook[namedModule](c.rec, "start root", nil)).
		OnShutdown(testutil.Hook[namedModule](c.rec, "shutdown root", nil)).
		Children(layer.Descriptor())
	if c.required != "" {
		root.Bind(linker.Value("Name", c.required, func(m *namedModule, v string) { m.Name = v }))
	}
	return root.Descriptor()
}

func (c *lifecycleBDDContext) iBuildAndStart() error {
	app, err := New(WithLogger(testutil.NewLogger()))
	if err != nil {
		return err
	}
	c.app = app
	if err := app.RegisterModule(c.descriptor()); err != nil {
		return err
	}
	c.startErr = app.BuildAndStart(context.Background(), config.NewObject("", config.NewObject("root")))
	return nil
}

func (c *lifecycleBDDContext) iShutDownTwice() error {
	for range 2 {
		c.stopErrs = append(c.stopErrs, c.app.Shutdown(context.Background()))
	}
	return nil
}

func (c *lifecycleBDDContext) hooksRanInOrder(kind, order string) error {
	var want []string
	for name := range strings.SplitSeq(order, ",") {
		want = append(want, kind+" "+strings.TrimSpace(name))
	}
	var got []string
	for _, call := range c.rec.Calls() {
		if strings.HasPrefix(call, kind+" ") {
			got = append(got, call)
		}
	}
	if !slices.Equal(want, got) {
		return fmt.Errorf("%w: want %v, got %v", errUnexpectedOrder, want, got)
	}
	return nil
}

func (c *lifecycleBDDContext) nodeIsInState(path, state string) error {
	if c.startErr != nil {
		return c.startErr
	}
	n, err := c.app.Node(path)
	if err != nil {
		return err
	}
	if got := n.State().String(); got != state {
		return fmt.Errorf("%w: %s is %s, want %s", errUnexpectedState, path, got, state)
	}
	return nil
}

func (c *lifecycleBDDContext) bothShutdownCallsSucceeded() error {
	return errors.Join(c.stopErrs...)
}

func (c *lifecycleBDDContext) buildFailsForKey(key string) error {
	var ce *linker.ConfigurationError
	if !errors.As(c.startErr, &ce) {
		return fmt.Errorf("%w: got %v", errExpectedFailure, c.startErr)
	}
	if ce.Key != key || !errors.Is(c.startErr, linker.ErrMissingKey) {
		return fmt.Errorf("%w: got %v", errExpectedFailure, c.startErr)
	}
	return nil
}

func (c *lifecycleBDDContext) moduleNotVisible(name string) error {
	if _, ok := c.app.ProvideModule(name, reflect.TypeFor[*namedModule]()); ok {
		return fmt.Errorf("%w: %s", errModuleVisible, name)
	}
	return nil
}

func InitializeLifecycleScenario(ctx *godog.ScenarioContext) {
	c := &lifecycleBDDContext{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	ctx.Step(`^a module "([^"]*)" with a layer "([^"]*)" owning submodule "([^"]*)"$`, c.aModuleWithLayerOwningSubmodule)
	ctx.Step(`^the layer auto-invokes its children$`, c.theLayerAutoInvokes)
	ctx.Step(`^the module requires configuration key "([^"]*)"$`, c.theModuleRequiresKey)
	ctx.Step(`^I build and start the application$`, c.iBuildAndStart)
	ctx.Step(`^I shut the application down twice$`, c.iShutDownTwice)
	ctx.Step(`^the (start|shutdown) hooks ran in order "([^"]*)"$`, c.hooksRanInOrder)
	ctx.Step(`^node "([^"]*)" is in state "([^"]*)"$`, c.nodeIsInState)
	ctx.Step(`^both shutdown calls succeeded$`, c.bothShutdownCallsSucceeded)
	ctx.Step(`^the build fails with a configuration error for key "([^"]*)"$`, c.buildFailsForKey)
	ctx.Step(`^module "([^"]*)" is not visible to the provider$`, c.moduleNotVisible)
}

func TestLifecycleFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeLifecycleScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/lifecycle.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
