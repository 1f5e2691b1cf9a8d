package main

// Result represents the validation result for JSON output
type Result struct {
	BasicValid      bool     `json:"basic_valid"`
	ProductionValid bool     `json:"production_valid"`
	Tips            []string `json:"tips,omitempty"`
	Messages        []string `json:"messages,omitempty"`
	Errors          []string `json:"errors,omitempty"`
	Configuration   *Config  `json:"configuration,omitempty"`
}

// Config summarizes the validated node configuration
type Config struct {
	EnclaveType      string   `json:"enclave_type"`
	Purpose          string   `json:"purpose"`
	StorePath        string   `json:"store_path"`
	PrimaryDomain    string   `json:"primary_domain,omitempty"`
	SecondaryDomains []string `json:"secondary_domains,omitempty"`
}
