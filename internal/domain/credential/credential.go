// Package credential defines the per-scan credential material supplied by
// the auth layer. Bundles are held only by the scan that uses them, never
// logged, and never serialized into reports or storage.
package credential

// AWS holds static AWS credentials for one scan
type AWS struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Azure holds an Azure service principal for one scan
type Azure struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
	Location       string
}

// GCP holds a GCP service account for one scan
type GCP struct {
	ProjectID          string
	ServiceAccountJSON string
	// BillingDataset is the BigQuery billing export table, e.g.
	// "my_project.billing.gcp_billing_export_v1_XXXXXX"
	BillingDataset string
}

// Bundle carries the credentials for every provider one scan touches. Nil
// fields mean the scan has no access to that provider.
type Bundle struct {
	AWS   *AWS
	Azure *Azure
	GCP   *GCP
}
