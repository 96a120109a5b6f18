package repository

import (
	"context"
	"fmt"

	"github.com/wastetrack/ticketcore/internal/ticket"
)

// SeedJob is the idempotent-insert shape for a Job reference row.
type SeedJob struct {
	Code      string
	Name      string
	StartDate string // YYYY-MM-DD
}

// SeedMaterial is the idempotent-insert shape for a Material reference
// row. RequiresManifest is the authoritative manifest-requirement flag —
// per DESIGN.md's Open Question decision, this reference column (not
// name pattern-matching) is what C7's create path consults.
type SeedMaterial struct {
	Name             string
	Class            ticket.MaterialClass
	RequiresManifest bool
}

// SeedDestination mirrors SeedMaterial for destinations.
type SeedDestination struct {
	Name             string
	FacilityType     string
	Address          string
	RequiresManifest bool
}

// SeedVendor is the idempotent-insert shape for a Vendor reference row.
type SeedVendor struct {
	Name        string
	Code        string
	ContactInfo string
}

// SeedData bundles every reference table's idempotent seed rows for one
// call to Seed. TicketTypes seeds EXPORT/IMPORT/TRANSFER unconditionally
// when empty.
type SeedData struct {
	Jobs         []SeedJob
	Materials    []SeedMaterial
	Destinations []SeedDestination
	Vendors      []SeedVendor
	Sources      []string
}

// Seed applies data idempotently: each row is inserted only if a row
// with the same unique name/code does not already exist, so running Seed
// against an already-seeded database is a no-op. Per spec §3's lifecycle
// note, reference rows are "created via an idempotent seeding step" and
// are otherwise immutable during a run.
func (s *Store) Seed(ctx context.Context, data SeedData) error {
	for _, tt := range []ticket.TicketTypeName{ticket.TicketTypeExport, ticket.TicketTypeImport, ticket.TicketTypeTransfer} {
		if err := s.seedTicketType(ctx, tt); err != nil {
			return err
		}
	}
	for _, j := range data.Jobs {
		if err := s.seedJob(ctx, j); err != nil {
			return err
		}
	}
	for _, m := range data.Materials {
		if err := s.seedMaterial(ctx, m); err != nil {
			return err
		}
	}
	for _, d := range data.Destinations {
		if err := s.seedDestination(ctx, d); err != nil {
			return err
		}
	}
	for _, v := range data.Vendors {
		if err := s.seedVendor(ctx, v); err != nil {
			return err
		}
	}
	for _, src := range data.Sources {
		if err := s.seedSource(ctx, src); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seedTicketType(ctx context.Context, name ticket.TicketTypeName) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO ticket_types (name) SELECT ? WHERE NOT EXISTS (SELECT 1 FROM ticket_types WHERE name = ?)`, string(name), string(name))
	if err != nil {
		return fmt.Errorf("repository: seed ticket type %s: %w", name, err)
	}
	return nil
}

func (s *Store) seedJob(ctx context.Context, j SeedJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (code, name, start_date)
		SELECT ?, ?, ? WHERE NOT EXISTS (SELECT 1 FROM jobs WHERE code = ?)`,
		j.Code, j.Name, j.StartDate, j.Code)
	if err != nil {
		return fmt.Errorf("repository: seed job %s: %w", j.Code, err)
	}
	return nil
}

func (s *Store) seedMaterial(ctx context.Context, m SeedMaterial) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO materials (name, class, requires_manifest)
		SELECT ?, ?, ? WHERE NOT EXISTS (SELECT 1 FROM materials WHERE name = ?)`,
		m.Name, string(m.Class), m.RequiresManifest, m.Name)
	if err != nil {
		return fmt.Errorf("repository: seed material %s: %w", m.Name, err)
	}
	return nil
}

func (s *Store) seedDestination(ctx context.Context, d SeedDestination) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO destinations (name, facility_type, address, requires_manifest)
		SELECT ?, ?, ?, ? WHERE NOT EXISTS (SELECT 1 FROM destinations WHERE name = ?)`,
		d.Name, d.FacilityType, d.Address, d.RequiresManifest, d.Name)
	if err != nil {
		return fmt.Errorf("repository: seed destination %s: %w", d.Name, err)
	}
	return nil
}

func (s *Store) seedVendor(ctx context.Context, v SeedVendor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (name, code, contact_info)
		SELECT ?, ?, ? WHERE NOT EXISTS (SELECT 1 FROM vendors WHERE name = ?)`,
		v.Name, v.Code, v.ContactInfo, v.Name)
	if err != nil {
		return fmt.Errorf("repository: seed vendor %s: %w", v.Name, err)
	}
	return nil
}

func (s *Store) seedSource(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (name) SELECT ? WHERE NOT EXISTS (SELECT 1 FROM sources WHERE name = ?)`,
		name, name)
	if err != nil {
		return fmt.Errorf("repository: seed source %s: %w", name, err)
	}
	return nil
}

// DefaultSeed is the reference data set the spec's worked examples (§8
// S1-S6) and the default config (job_code 24-105, ticket_type EXPORT)
// assume exist. Operators load their own seed set in production; this is
// the fixture ticketctl's `seed` and `run` subcommands apply.
func DefaultSeed() SeedData {
	return SeedData{
		Jobs: []SeedJob{
			{Code: "24-105", Name: "24-105 Export Project", StartDate: "2024-07-01"},
		},
		Materials: []SeedMaterial{
			{Name: "CLASS_2_CONTAMINATED", Class: ticket.MaterialClassContaminated, RequiresManifest: true},
			{Name: "NON_CONTAMINATED", Class: ticket.MaterialClassClean, RequiresManifest: false},
			{Name: "CLEAN", Class: ticket.MaterialClassClean, RequiresManifest: false},
			{Name: "SPOILS", Class: ticket.MaterialClassSpoils, RequiresManifest: false},
			{Name: "IMPORT", Class: ticket.MaterialClassImport, RequiresManifest: false},
			{Name: "HAZARDOUS", Class: ticket.MaterialClassContaminated, RequiresManifest: true},
		},
		Destinations: []SeedDestination{
			{Name: "WASTE_MANAGEMENT_LEWISVILLE", FacilityType: "LANDFILL", RequiresManifest: true},
		},
		Vendors: []SeedVendor{
			{Name: "WASTE_MANAGEMENT", Code: "WM"},
			{Name: "REPUBLIC_SERVICES", Code: "RS"},
		},
		Sources: []string{"SPG"},
	}
}
