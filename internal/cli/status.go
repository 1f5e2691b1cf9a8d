package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/services"
)

// StatusReport is the output of the status command.
type StatusReport struct {
	EnclaveType    string         `json:"enclave_type"`
	Purpose        string         `json:"purpose"`
	StorePath      string         `json:"store_path"`
	AllInitialized bool           `json:"all_initialized"`
	Stages         []string       `json:"stages"`
	Missing        []string       `json:"missing"`
	Entries        int            `json:"entries"`
	MaxEntries     int            `json:"max_entries"`
	Domains        []DomainReport `json:"domains"`
}

// DomainReport describes one registered domain.
type DomainReport struct {
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Admission   string     `json:"admission"`
	Service     string     `json:"service"`
	Certified   bool       `json:"certified"`
	CertifiedAt *time.Time `json:"certified_at,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show initialization stages and domain certification state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := openNode(cmd, nodeOptions{restore: true, allowEmpty: true})
			if err != nil {
				return err
			}
			defer n.Close()
			return printStatus(cmd, n.td)
		},
	}
}

func buildStatusReport(td *services.TrustData) StatusReport {
	store := td.PolicyStore()
	r := StatusReport{
		EnclaveType:    td.EnclaveType(),
		Purpose:        string(td.Purpose()),
		StorePath:      td.StorePath(),
		AllInitialized: td.AllInitialized(),
		Stages:         stageNames(td.Stages()),
		Missing:        stageNames(td.MissingStages()),
		Entries:        store.NumEntries(),
		MaxEntries:     store.MaxEntries(),
	}
	if p := td.PrimaryDomain(); p != nil {
		r.Domains = append(r.Domains, domainReport(p, domain.DomainPrimary))
	}
	for _, d := range td.SecondaryDomains() {
		r.Domains = append(r.Domains, domainReport(d, domain.DomainSecondary))
	}
	return r
}

func domainReport(d *domain.CertifiedDomain, kind domain.DomainKind) DomainReport {
	r := DomainReport{
		Name:      d.Name,
		Kind:      kind.String(),
		Admission: d.Admission.String(),
		Service:   d.Service.String(),
		Certified: d.IsCertified(),
	}
	if !d.CertifiedAt.IsZero() {
		at := d.CertifiedAt
		r.CertifiedAt = &at
	}
	return r
}

func stageNames(s domain.InitStages) []string {
	names := []string{}
	for _, st := range s.Stages() {
		names = append(names, st.String())
	}
	return names
}

func printStatus(cmd *cobra.Command, td *services.TrustData) error {
	report := buildStatusReport(td)
	out := cmd.OutOrStdout()

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("%w: failed to encode status as JSON: %v", ErrInternal, err)
		}
	case "", "text":
		fmt.Fprintf(out, "Enclave: %s, purpose: %s\n", report.EnclaveType, report.Purpose)
		fmt.Fprintf(out, "Policy store: %s (%d/%d entries)\n", report.StorePath, report.Entries, report.MaxEntries)
		fmt.Fprintf(out, "All initialized: %t\n", report.AllInitialized)
		fmt.Fprintf(out, "Stages: %s\n", td.Stages())
		if len(report.Missing) > 0 {
			fmt.Fprintf(out, "Missing: %s\n", td.MissingStages())
		}
		for _, d := range report.Domains {
			state := "not certified"
			if d.Certified {
				state = "certified"
				if d.CertifiedAt != nil {
					state += " at " + d.CertifiedAt.Format(time.RFC3339)
				}
			}
			fmt.Fprintf(out, "  %s (%s): admission %s, service %s, %s\n", d.Name, d.Kind, d.Admission, d.Service, state)
		}
	default:
		return fmt.Errorf("%w: unsupported format %q, use 'text' or 'json'", ErrUsage, format)
	}
	return nil
}
