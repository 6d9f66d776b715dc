package registration

// Identity describes this extension to the Core. The values come from
// configuration.
type Identity struct {
	ExtensionID      string   `json:"extension_id" yaml:"extension_id" mapstructure:"extension_id"`
	DisplayName      string   `json:"display_name" yaml:"display_name" mapstructure:"display_name"`
	DisplayVersion   string   `json:"display_version" yaml:"display_version" mapstructure:"display_version"`
	Publisher        string   `json:"publisher" yaml:"publisher" mapstructure:"publisher"`
	Email            string   `json:"email" yaml:"email" mapstructure:"email"`
	Website          string   `json:"website,omitempty" yaml:"website" mapstructure:"website"`
	RequiredServices []string `json:"required_services" yaml:"required_services" mapstructure:"required_services"`
	OptionalServices []string `json:"optional_services" yaml:"optional_services" mapstructure:"optional_services"`
	ProvidedServices []string `json:"provided_services" yaml:"provided_services" mapstructure:"provided_services"`
}

// DefaultIdentity returns a generic identity for the corelink tools.
func DefaultIdentity() Identity {
	return Identity{
		ExtensionID:      "com.corelink.client",
		DisplayName:      "Corelink",
		DisplayVersion:   "0.1.0",
		Publisher:        "Corelink",
		Email:            "corelink@localhost",
		RequiredServices: []string{},
		OptionalServices: []string{ServiceTransport, ServiceBrowse, ServiceImage},
		ProvidedServices: []string{ServicePing, ServiceStatus},
	}
}

// withProvided returns a copy whose provided services include the ping and
// status services answered by the session layer.
func (id Identity) withProvided() Identity {
	provided := make([]string, 0, len(id.ProvidedServices)+2)
	provided = append(provided, id.ProvidedServices...)
	for _, svc := range []string{ServicePing, ServiceStatus} {
		if !contains(provided, svc) {
			provided = append(provided, svc)
		}
	}
	id.ProvidedServices = provided

	if id.RequiredServices == nil {
		id.RequiredServices = []string{}
	}
	if id.OptionalServices == nil {
		id.OptionalServices = []string{}
	}
	return id
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
