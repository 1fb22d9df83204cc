// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ProgressTestSuite struct {
	suite.Suite
	tracer *Tracer
}

func (suite *ProgressTestSuite) SetupTest() {
	suite.tracer = NewTracer("test")
}

func (suite *ProgressTestSuite) TestLeafProgress() {
	_, span := suite.tracer.Start(context.Background(), "root", 100)
	progressList := suite.tracer.List()
	suite.Equal(1, len(progressList))
	suite.Equal("test", progressList[0].Tracer)
	suite.Equal("root", progressList[0].Name)
	suite.Equal(StatusRunning, progressList[0].Status)
	suite.Empty(progressList[0].Error)
	suite.Equal(100, progressList[0].Total)
	suite.Empty(progressList[0].Count)
	suite.False(progressList[0].StartTime.After(time.Now()))

	span.Add(10)
	progressList = suite.tracer.List()
	suite.Equal(10, progressList[0].Count)

	span.End()
	progressList = suite.tracer.List()
	suite.Equal(StatusComplete, progressList[0].Status)
	suite.Equal(100, progressList[0].Count)
	suite.False(progressList[0].FinishTime.Before(progressList[0].StartTime))

	span.Fail(errors.New("some error"))
	progressList = suite.tracer.List()
	suite.Equal(StatusFailed, progressList[0].Status)
	suite.Equal("some error", progressList[0].Error)
}

func (suite *ProgressTestSuite) TestMultiLevelProgress() {
	ctx, rootSpan := suite.tracer.Start(context.Background(), "root", 2)
	_, fitSpan := Start(ctx, "ALS.Fit", 10)
	fitSpan.Add(3)
	progressList := suite.tracer.List()
	suite.Equal(2, len(progressList))
	suite.Equal("root", progressList[0].Name)
	suite.Equal("ALS.Fit", progressList[1].Name)
	suite.Equal(3, progressList[1].Count)
	fitSpan.End()
	rootSpan.Add(1)
	progressList = suite.tracer.List()
	suite.Equal(StatusComplete, progressList[1].Status)
	suite.Equal(1, progressList[0].Count)
}

func (suite *ProgressTestSuite) TestDetachedSpan() {
	ctx, span := Start(context.Background(), "detached", 5)
	suite.Equal(context.Background(), ctx)
	span.Add(5)
	suite.Equal(5, span.Count())
	suite.Empty(suite.tracer.List())
}

func TestProgress(t *testing.T) {
	suite.Run(t, new(ProgressTestSuite))
}
