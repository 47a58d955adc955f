package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

var errNotShared = errors.New("instances differ")

type selfLoop struct{ next *selfLoop }

type registryBDDContext struct {
	r      *Registry
	first  any
	second any
	err    error
}

func (c *registryBDDContext) reset() {
	c.r = New()
	c.first, c.second, c.err = nil, nil, nil
}

func (c *registryBDDContext) singletonDescriptor() error {
	return c.r.Register(Bean[compA](nil).Descriptor())
}

func (c *registryBDDContext) transientDescriptor() error {
	return c.r.Register(Bean[compA](nil).Transient().Descriptor())
}

func (c *registryBDDContext) mutualSingletons() error {
	return c.r.Register(
		Bean[mutualA](nil).Inject(Inject("B", func(a *mutualA, b *mutualB) { a.B = b })).Descriptor(),
		Bean[mutualB](nil).Inject(Inject("A", func(b *mutualB, a *mutualA) { b.A = a })).Descriptor(),
	)
}

func (c *registryBDDContext) selfReferencingTransient() error {
	return c.r.Register(Bean[selfLoop](nil).Transient().Inject(
		Inject("next", func(l *selfLoop, n *selfLoop) { l.next = n }),
	).Descriptor())
}

func (c *registryBDDContext) compositeWithMissingDependency() error {
	return c.r.Register(Bean[compC](nil).Inject(
		Inject("A", func(cc *compC, a *compA) { cc.A = a }),
	).Descriptor())
}

func (c *registryBDDContext) resolveComponentTwice() error {
	var err error
	if c.first, err = Get[compA](context.Background(), c.r); err != nil {
		return err
	}
	c.second, err = Get[compA](context.Background(), c.r)
	return err
}

func (c *registryBDDContext) resolveFirstMutual() error {
	var err error
	c.first, err = Get[mutualA](context.Background(), c.r)
	return err
}

func (c *registryBDDContext) resolveTransient() error {
	c.first, c.err = Get[selfLoop](context.Background(), c.r)
	return nil
}

func (c *registryBDDContext) resolveComposite() error {
	c.first, c.err = Get[compC](context.Background(), c.r)
	return nil
}

func (c *registryBDDContext) sameInstance() error {
	if c.first.(*compA) != c.second.(*compA) {
		return errNotShared
	}
	return nil
}

func (c *registryBDDContext) differentInstances() error {
	if c.first.(*compA) == c.second.(*compA) {
		return errors.New("transient resolutions returned the same instance")
	}
	return nil
}

func (c *registryBDDContext) eachHoldsTheOther() error {
	a := c.first.(*mutualA)
	if a.B == nil || a.B.A != a {
		return errNotShared
	}
	return nil
}

func (c *registryBDDContext) resolutionFails(msg string) error {
	if c.err == nil {
		return errors.New("expected resolution to fail")
	}
	if !strings.Contains(c.err.Error(), msg) {
		return fmt.Errorf("error %q does not mention %q", c.err, msg)
	}
	return nil
}

func InitializeRegistryScenario(ctx *godog.ScenarioContext) {
	c := &registryBDDContext{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	ctx.Step(`^a singleton descriptor for components$`, c.singletonDescriptor)
	ctx.Step(`^a transient descriptor for components$`, c.transientDescriptor)
	ctx.Step(`^two singletons that reference each other$`, c.mutualSingletons)
	ctx.Step(`^a transient that references itself$`, c.selfReferencingTransient)
	ctx.Step(`^a composite whose dependency is not registered$`, c.compositeWithMissingDependency)
	ctx.Step(`^I resolve a component twice$`, c.resolveComponentTwice)
	ctx.Step(`^I resolve the first of them$`, c.resolveFirstMutual)
	ctx.Step(`^I resolve the transient$`, c.resolveTransient)
	ctx.Step(`^I resolve the composite$`, c.resolveComposite)
	ctx.Step(`^both resolutions return the same instance$`, c.sameInstance)
	ctx.Step(`^both resolutions return different instances$`, c.differentInstances)
	ctx.Step(`^each holds the other$`, c.eachHoldsTheOther)
	ctx.Step(`^resolution fails with "([^"]*)"$`, c.resolutionFails)
}

func TestRegistryFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeRegistryScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/registry.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
