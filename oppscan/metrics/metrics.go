package metrics

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"

	"github.com/switchrx/oppscan-app/oppscan/service"
)

type Dimension struct {
	Name  string
	Value string
}

type Sampler struct {
	Namespace string
	Unit      string
	Service   *cloudwatch.CloudWatch
}

func (s *Sampler) PutSample(name string, value float64, dimensions []Dimension) error {
	var d []*cloudwatch.Dimension

	for _, v := range dimensions {
		def := &cloudwatch.Dimension{
			Name:  &v.Name,
			Value: &v.Value,
		}
		d = append(d, def)
	}

	data := &cloudwatch.MetricDatum{
		Dimensions: d,
		MetricName: &name,
		Unit:       &s.Unit,
		Value:      &value,
	}

	input := &cloudwatch.PutMetricDataInput{
		MetricData: []*cloudwatch.MetricDatum{data},
		Namespace:  &s.Namespace,
	}
	_, err := s.Service.PutMetricData(input)
	return err
}

// PutScanSamples publishes one trigger scan's counters, dimensioned on the
// trigger so per-trigger dashboards come for free.
func (s *Sampler) PutScanSamples(result *service.ScanResult) error {
	dimensions := []Dimension{
		{Name: "Trigger", Value: result.TriggerName},
	}

	samples := map[string]float64{
		"MatchedClaims":          float64(result.MatchedClaims),
		"ExcludedClaims":         float64(result.ExcludedClaims),
		"CoverageRecords":        float64(result.CoverageRecords),
		"OpportunitiesCreated":   float64(result.OpportunitiesCreated),
		"OpportunitiesRefreshed": float64(result.OpportunitiesRefreshed),
		"OpportunitiesSkipped":   float64(result.OpportunitiesSkipped),
	}

	for name, value := range samples {
		if err := s.PutSample(name, value, dimensions); err != nil {
			return err
		}
	}
	return nil
}

func NewSampler(ns, unit string) (*Sampler, error) {
	s := session.Must(session.NewSession(&aws.Config{
		Region: aws.String("us-east-1"),
	}))
	svc := cloudwatch.New(s)
	return &Sampler{ns, unit, svc}, nil
}
