package uconnect

import "fmt"

// Brand is a Stellantis sub-brand served by the Uconnect family of backends.
type Brand string

const (
	BrandFiat      Brand = "fiat"
	BrandJeep      Brand = "jeep"
	BrandRam       Brand = "ram"
	BrandDodge     Brand = "dodge"
	BrandChrysler  Brand = "chrysler"
	BrandAlfaRomeo Brand = "alfa_romeo"
	BrandMaserati  Brand = "maserati"
)

// Region is a geographic API deployment.
type Region string

const (
	RegionEU       Region = "eu"
	RegionUS       Region = "us"
	RegionCanada   Region = "canada"
	RegionUSCanada Region = "us_canada"
	RegionAsia     Region = "asia"
)

// EndpointConfig holds everything needed to talk to one brand/region
// deployment: the account login gateway, the token exchange endpoint, the
// telemetry API and the PIN authorization service.
type EndpointConfig struct {
	Name        string
	Brand       Brand
	Region      Region
	LoginURL    string
	LoginAPIKey string
	TokenURL    string
	APIURL      string
	APIKey      string
	AuthURL     string
	AuthAPIKey  string
	Locale      string
}

// The deployments below mirror the backends of the official mobile apps.
// EU/Asia brands share the Fiat EU gateway family, North America the
// us-east-1 family, Maserati its own login realm.
var endpoints = map[Brand]map[Region]EndpointConfig{
	BrandFiat: {
		RegionEU: {
			Name: "Fiat (EU)", Brand: BrandFiat, Region: RegionEU,
			LoginURL:    "https://loginmyuconnect.fiat.com",
			LoginAPIKey: "3_mOx_J2dRgjXYCdyhchv3b5lhi54eBcdCTX4BI8MORqmZCoQWhA0mV2PTlptLGUQI",
			TokenURL:    "https://authz.sdpr-01.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-01.fcagcv.com",
			APIKey:      "qLYupk65UU1tw2Ih1cJhs4izijgRDbir2UFHA3Je",
			AuthURL:     "https://mfa.fcl-01.fcagcv.com",
			AuthAPIKey:  "JWRYW7IYhW9v0RqDghQSx4UcRYRILNmc8zAuh5ys",
			Locale:      "de_de",
		},
		RegionUS: {
			Name: "Fiat (US)", Brand: BrandFiat, Region: RegionUS,
			LoginURL:    "https://login-us.fiat.com",
			LoginAPIKey: "3_WfFvRZLWhcWsxcUV3JTIzHQ56P69rLHtnMAjAvxHVk0nhCrsMWtmvhaVVtYGdfVk",
			TokenURL:    "https://authz.sdpr-02.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-02.fcagcv.com",
			APIKey:      "OgNqp2eAv84oZvMrXPIzP8mR8a6d9bVm1aaH9LqU",
			AuthURL:     "https://mfa.fcl-02.fcagcv.com",
			AuthAPIKey:  "fNQO6NjR1N6W0E5A6sTzR3YY4JGbuPv48Nj9aZci",
			Locale:      "en_us",
		},
		RegionCanada: {
			Name: "Fiat (Canada)", Brand: BrandFiat, Region: RegionCanada,
			LoginURL:    "https://login-stage-us.fiat.com",
			LoginAPIKey: "3_WfFvRZLWhcWsxcUV3JTIzHQ56P69rLHtnMAjAvxHVk0nhCrsMWtmvhaVVtYGdfVk",
			TokenURL:    "https://authz.sdpr-02.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-02.fcagcv.com",
			APIKey:      "OgNqp2eAv84oZvMrXPIzP8mR8a6d9bVm1aaH9LqU",
			AuthURL:     "https://mfa.fcl-02.fcagcv.com",
			AuthAPIKey:  "fNQO6NjR1N6W0E5A6sTzR3YY4JGbuPv48Nj9aZci",
			Locale:      "en_ca",
		},
		RegionAsia: {
			Name: "Fiat (Asia)", Brand: BrandFiat, Region: RegionAsia,
			LoginURL:    "https://login-iap.fiat.com",
			LoginAPIKey: "3_Ii2kSgQm4ljy0OI0HpTrBeUeGLIWf3eoHRLMEyUNhPr3u3uju22cEgo_38BS8dYd",
			TokenURL:    "https://authz.sdpr-01.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-01.fcagcv.com",
			APIKey:      "qLYupk65UU1tw2Ih1cJhs4izijgRDbir2UFHA3Je",
			AuthURL:     "https://mfa.fcl-01.fcagcv.com",
			AuthAPIKey:  "JWRYW7IYhW9v0RqDghQSx4UcRYRILNmc8zAuh5ys",
			Locale:      "en_sg",
		},
	},
	BrandJeep: {
		RegionEU: {
			Name: "Jeep (EU)", Brand: BrandJeep, Region: RegionEU,
			LoginURL:    "https://login.jeep.com",
			LoginAPIKey: "3_ZvJpoiZQ4jT5ACwouBG5D1seGEntHGhlL0JYlZNtj95yERzqpH4fFyIewVMmmK7j",
			TokenURL:    "https://authz.sdpr-01.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-01.fcagcv.com",
			APIKey:      "qLYupk65UU1tw2Ih1cJhs4izijgRDbir2UFHA3Je",
			AuthURL:     "https://mfa.fcl-01.fcagcv.com",
			AuthAPIKey:  "JWRYW7IYhW9v0RqDghQSx4UcRYRILNmc8zAuh5ys",
			Locale:      "de_de",
		},
		RegionUS: {
			Name: "Jeep (US)", Brand: BrandJeep, Region: RegionUS,
			LoginURL:    "https://login-us.jeep.com",
			LoginAPIKey: "3_5qxvrevRPG7--nEXe6huWdVvF5kV7bmmJcyLdaTJ8A45XMYy0I5uX19zfSZYzUn0",
			TokenURL:    "https://authz.sdpr-02.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-02.fcagcv.com",
			APIKey:      "OgNqp2eAv84oZvMrXPIzP8mR8a6d9bVm1aaH9LqU",
			AuthURL:     "https://mfa.fcl-02.fcagcv.com",
			AuthAPIKey:  "fNQO6NjR1N6W0E5A6sTzR3YY4JGbuPv48Nj9aZci",
			Locale:      "en_us",
		},
		RegionAsia: {
			Name: "Jeep (Asia)", Brand: BrandJeep, Region: RegionAsia,
			LoginURL:    "https://login-iap.jeep.com",
			LoginAPIKey: "3_YjXGpJRGPaYHHBQ8QWWGLENlh5Z9ZnDrkrpMJyQbeXTXpziAGEmYCfIhJIll2MvZ",
			TokenURL:    "https://authz.sdpr-01.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-01.fcagcv.com",
			APIKey:      "qLYupk65UU1tw2Ih1cJhs4izijgRDbir2UFHA3Je",
			AuthURL:     "https://mfa.fcl-01.fcagcv.com",
			AuthAPIKey:  "JWRYW7IYhW9v0RqDghQSx4UcRYRILNmc8zAuh5ys",
			Locale:      "en_sg",
		},
	},
	BrandRam: {
		RegionUS: {
			Name: "Ram (US)", Brand: BrandRam, Region: RegionUS,
			LoginURL:    "https://login-us.ramtrucks.com",
			LoginAPIKey: "3_7YjzjoSb7dYtCP5-D6FhPsCciggJFvM14hNPvXN9OsIiV1ujDqa4fNltDJYnHawO",
			TokenURL:    "https://authz.sdpr-02.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-02.fcagcv.com",
			APIKey:      "OgNqp2eAv84oZvMrXPIzP8mR8a6d9bVm1aaH9LqU",
			AuthURL:     "https://mfa.fcl-02.fcagcv.com",
			AuthAPIKey:  "fNQO6NjR1N6W0E5A6sTzR3YY4JGbuPv48Nj9aZci",
			Locale:      "en_us",
		},
	},
	BrandDodge: {
		RegionUS: {
			Name: "Dodge (US)", Brand: BrandDodge, Region: RegionUS,
			LoginURL:    "https://login-us.dodge.com",
			LoginAPIKey: "4_dSRvo6ZIpp8_St7BF9VHGa",
			TokenURL:    "https://authz.sdpr-02.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-02.fcagcv.com",
			APIKey:      "OgNqp2eAv84oZvMrXPIzP8mR8a6d9bVm1aaH9LqU",
			AuthURL:     "https://mfa.fcl-02.fcagcv.com",
			AuthAPIKey:  "fNQO6NjR1N6W0E5A6sTzR3YY4JGbuPv48Nj9aZci",
			Locale:      "en_us",
		},
	},
	BrandChrysler: {
		RegionUS: {
			Name: "Chrysler (US)", Brand: BrandChrysler, Region: RegionUS,
			LoginURL:    "https://login-us.chrysler.com",
			LoginAPIKey: "3_cv4AzHkJh48-cqwaf_Ahcg1HnsmQqz1lm0sOdVdHW5FjT3m6d8zYv-10T0ciePbf",
			TokenURL:    "https://authz.sdpr-02.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-02.fcagcv.com",
			APIKey:      "OgNqp2eAv84oZvMrXPIzP8mR8a6d9bVm1aaH9LqU",
			AuthURL:     "https://mfa.fcl-02.fcagcv.com",
			AuthAPIKey:  "fNQO6NjR1N6W0E5A6sTzR3YY4JGbuPv48Nj9aZci",
			Locale:      "en_us",
		},
		RegionCanada: {
			Name: "Chrysler (Canada)", Brand: BrandChrysler, Region: RegionCanada,
			LoginURL:    "https://login-stage-us.chrysler.com",
			LoginAPIKey: "3_cv4AzHkJh48-cqwaf_Ahcg1HnsmQqz1lm0sOdVdHW5FjT3m6d8zYv-10T0ciePbf",
			TokenURL:    "https://authz.sdpr-02.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-02.fcagcv.com",
			APIKey:      "OgNqp2eAv84oZvMrXPIzP8mR8a6d9bVm1aaH9LqU",
			AuthURL:     "https://mfa.fcl-02.fcagcv.com",
			AuthAPIKey:  "fNQO6NjR1N6W0E5A6sTzR3YY4JGbuPv48Nj9aZci",
			Locale:      "en_ca",
		},
	},
	BrandAlfaRomeo: {
		RegionEU: {
			Name: "Alfa Romeo (EU)", Brand: BrandAlfaRomeo, Region: RegionEU,
			LoginURL:    "https://login.alfaromeo.com",
			LoginAPIKey: "3_h8sj2VQI-KYXiunPq9a1QuAA4yWkY0r5AD1u8A8B1RPn_Cvl54xcoc2-InH5onJk",
			TokenURL:    "https://authz.sdpr-01.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-01.fcagcv.com",
			APIKey:      "qLYupk65UU1tw2Ih1cJhs4izijgRDbir2UFHA3Je",
			AuthURL:     "https://mfa.fcl-01.fcagcv.com",
			AuthAPIKey:  "JWRYW7IYhW9v0RqDghQSx4UcRYRILNmc8zAuh5ys",
			Locale:      "de_de",
		},
		RegionUSCanada: {
			Name: "Alfa Romeo (US/Canada)", Brand: BrandAlfaRomeo, Region: RegionUSCanada,
			LoginURL:    "https://login-us.alfaromeo.com",
			LoginAPIKey: "3_FSxGyaktviayTDRcgp9r9o2KjuFSrHT13wWNN9zPrvAyUHbmxJtQLSOkus8gfyTn",
			TokenURL:    "https://authz.sdpr-02.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-02.fcagcv.com",
			APIKey:      "OgNqp2eAv84oZvMrXPIzP8mR8a6d9bVm1aaH9LqU",
			AuthURL:     "https://mfa.fcl-02.fcagcv.com",
			AuthAPIKey:  "fNQO6NjR1N6W0E5A6sTzR3YY4JGbuPv48Nj9aZci",
			Locale:      "en_us",
		},
		RegionAsia: {
			Name: "Alfa Romeo (Asia)", Brand: BrandAlfaRomeo, Region: RegionAsia,
			LoginURL:    "https://login-iap.alfaromeo.com",
			LoginAPIKey: "3_uwU1gUtMGwtwlUGMBEnFJWJYZEUMnHLY2SPmZpBpuMAR2re1z3iyjzBfFDCtpNJd",
			TokenURL:    "https://authz.sdpr-01.fcagcv.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-01.fcagcv.com",
			APIKey:      "qLYupk65UU1tw2Ih1cJhs4izijgRDbir2UFHA3Je",
			AuthURL:     "https://mfa.fcl-01.fcagcv.com",
			AuthAPIKey:  "JWRYW7IYhW9v0RqDghQSx4UcRYRILNmc8zAuh5ys",
			Locale:      "en_sg",
		},
	},
	BrandMaserati: {
		RegionEU: {
			Name: "Maserati (EU)", Brand: BrandMaserati, Region: RegionEU,
			LoginURL:    "https://login.maserati.com",
			LoginAPIKey: "3_rNbVuhn2gIt3BnLjlGsJcMo26Lft3avDne_FLRT34Dy_9OxHtCVOnplwY436lGZa",
			TokenURL:    "https://authz.sdpr-01.prd.emea.gcv.maserati.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-01.prd.emea.gcv.maserati.com",
			APIKey:      "qLYupk65UU1tw2Ih1cJhs4izijgRDbir2UFHA3Je",
			AuthURL:     "https://mfa.fcl-01.fcagcv.com",
			AuthAPIKey:  "JWRYW7IYhW9v0RqDghQSx4UcRYRILNmc8zAuh5ys",
			Locale:      "de_de",
		},
		RegionUSCanada: {
			Name: "Maserati (US/Canada)", Brand: BrandMaserati, Region: RegionUSCanada,
			LoginURL:    "https://login-us.maserati.com",
			LoginAPIKey: "3_nShLbLPpVkxkqkmLjUgDTnvLVbVKKKsYPDHHGrNJFFx5dT0eiO8GhDgGYKbCfWTN",
			TokenURL:    "https://authz.sdpr-02.prd.nafta.gcv.maserati.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-02.prd.nafta.gcv.maserati.com",
			APIKey:      "OgNqp2eAv84oZvMrXPIzP8mR8a6d9bVm1aaH9LqU",
			AuthURL:     "https://mfa.fcl-02.fcagcv.com",
			AuthAPIKey:  "fNQO6NjR1N6W0E5A6sTzR3YY4JGbuPv48Nj9aZci",
			Locale:      "en_us",
		},
		RegionAsia: {
			Name: "Maserati (Asia)", Brand: BrandMaserati, Region: RegionAsia,
			LoginURL:    "https://login-iap.maserati.com",
			LoginAPIKey: "3_BZvOkDdnJjwEqqcrWjtpiKPJBGLFgUOPHbVkQPvNZnMdGdNHRBLGLcFgzLDzMHxv",
			TokenURL:    "https://authz.sdpr-01.prd.apac.gcv.maserati.com/v2/cognito/identity/token",
			APIURL:      "https://channels.sdpr-01.prd.apac.gcv.maserati.com",
			APIKey:      "qLYupk65UU1tw2Ih1cJhs4izijgRDbir2UFHA3Je",
			AuthURL:     "https://mfa.fcl-01.fcagcv.com",
			AuthAPIKey:  "JWRYW7IYhW9v0RqDghQSx4UcRYRILNmc8zAuh5ys",
			Locale:      "en_sg",
		},
	},
}

// Resolve looks up the endpoint configuration for a brand/region pair.
// Unknown pairs fail with ConfigError so misconfiguration is rejected at
// setup time, never at first request.
func Resolve(brand Brand, region Region) (EndpointConfig, error) {
	regions, ok := endpoints[brand]
	if !ok {
		return EndpointConfig{}, &ConfigError{Brand: string(brand), Region: string(region)}
	}
	cfg, ok := regions[region]
	if !ok {
		return EndpointConfig{}, &ConfigError{Brand: string(brand), Region: string(region)}
	}
	return cfg, nil
}

// ResolveName looks up an endpoint by its display name, e.g. "Jeep (EU)",
// matching how the setup flow presents the selection.
func ResolveName(name string) (EndpointConfig, error) {
	for _, regions := range endpoints {
		for _, cfg := range regions {
			if cfg.Name == name {
				return cfg, nil
			}
		}
	}
	return EndpointConfig{}, &ConfigError{Brand: name}
}

// BrandRegions lists every supported brand/region pair.
func BrandRegions() []EndpointConfig {
	var out []EndpointConfig
	for _, regions := range endpoints {
		for _, cfg := range regions {
			out = append(out, cfg)
		}
	}
	return out
}

func (c EndpointConfig) String() string {
	return fmt.Sprintf("%s/%s", c.Brand, c.Region)
}
