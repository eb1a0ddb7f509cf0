package vault

import (
	"context"
	"sort"
	"strconv"

	"github.com/R3E-Network/shield_vault/internal/events"
)

// Version returns the stored layout version.
func (v *Vault) Version(ctx context.Context) (uint32, error) {
	var version uint32
	err := v.view(ctx, func(c *call) error {
		version = c.st.Version
		return nil
	})
	return version, err
}

// CheckVersion fails with ErrVersionMismatch unless the stored layout is expected.
func (v *Vault) CheckVersion(ctx context.Context, expected uint32) error {
	version, err := v.Version(ctx)
	if err != nil {
		return err
	}
	if version != expected {
		return ErrVersionMismatch.Wrapf("stored version %d, expected %d", version, expected)
	}
	return nil
}

// Migrate raises the stored layout to newVersion, running each registered
// step in order inside one transaction. Admin only. Migrate is the one
// mutating call allowed on a layout the code does not expect.
func (v *Vault) Migrate(ctx context.Context, newVersion uint32) error {
	return v.run(ctx, "migrate", callOpts{anyVersion: true}, func(c *call) error {
		if err := c.requireAdmin(); err != nil {
			return err
		}
		from := c.st.Version
		if newVersion <= from {
			return ErrInvalidVersion.Wrapf("new version %d, current %d", newVersion, from)
		}
		for _, step := range c.v.migrationSteps(from, newVersion) {
			m := c.v.migrations[step]
			if err := m(c.ctx, c.tx, &c.st); err != nil {
				return ErrInvalidVersion.Wrapf("migration to %d: %v", step, err)
			}
			c.v.log.WithField("step", step).Info("applied storage migration")
		}
		c.st.Version = newVersion
		c.emit(events.NewEvent(events.EventMigrated).
			Principal(c.st.Admin.String()).
			Metadata("from", strconv.FormatUint(uint64(from), 10)).
			Metadata("to", strconv.FormatUint(uint64(newVersion), 10)))
		return nil
	})
}

// migrationSteps returns the registered versions in (from, to], ascending.
func (v *Vault) migrationSteps(from, to uint32) []uint32 {
	steps := make([]uint32, 0, len(v.migrations))
	for version := range v.migrations {
		if version > from && version <= to {
			steps = append(steps, version)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps
}
