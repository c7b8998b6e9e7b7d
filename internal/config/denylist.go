package config

// DefaultDenylistDomains returns domains whose visits are never recorded
// when capture.use_default_denylist is on. Subdomains are covered too.
func DefaultDenylistDomains() []string {
	return []string{
		// banking and payments
		"chase.com",
		"bankofamerica.com",
		"wellsfargo.com",
		"citi.com",
		"capitalone.com",
		"schwab.com",
		"fidelity.com",
		"vanguard.com",
		"paypal.com",
		"venmo.com",
		"wise.com",
		"revolut.com",

		// password managers
		"1password.com",
		"lastpass.com",
		"bitwarden.com",
		"dashlane.com",

		// sign-in pages
		"accounts.google.com",
		"login.microsoftonline.com",
		"login.live.com",
		"appleid.apple.com",
		"okta.com",
		"auth0.com",

		// health
		"mychart.com",
		"kp.org",
		"healthcare.gov",

		// government and tax
		"irs.gov",
		"ssa.gov",
		"login.gov",
		"id.me",

		// crypto
		"coinbase.com",
		"kraken.com",
	}
}
