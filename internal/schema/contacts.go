package schema

// Contacts returns the built-in schema used when no schema file is
// configured.
func Contacts() *Schema {
	return MustNew("contacts", []Column{
		{Key: "firstName", Label: "First Name", Required: true, Default: true},
		{Key: "lastName", Label: "Last Name", Required: true, Default: true},
		{
			Key:       "email",
			Label:     "Email",
			Required:  true,
			Default:   true,
			Validator: Check(EmailPattern.MatchString, "Invalid email format"),
			Rules:     []string{"email"},
		},
		{Key: "phone", Label: "Phone Number", Validator: mustRule("phone"), Rules: []string{"phone"}},
		{Key: "department", Label: "Department"},
		{Key: "salary", Label: "Salary", Validator: mustRule("numeric"), Rules: []string{"numeric"}},
	})
}

func mustRule(name string) Validator {
	v, err := BuildRule(RuleSpec{Name: name})
	if err != nil {
		panic(err)
	}
	return v
}
